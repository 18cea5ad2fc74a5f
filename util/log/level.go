package log

import (
	"strings"
	"sync/atomic"
)

// debug gates Debug/Debugf output. The config file's log_level drives it via
// SetLevel at startup and on config reload.
var debug atomic.Bool

// SetLevel enables or disables debug output based on the given level string.
// Recognized debug levels are "debug" and "trace"; anything else keeps debug
// output off.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug", "trace":
		debug.Store(true)
	default:
		debug.Store(false)
	}
}

func debugEnabled() bool {
	return debug.Load()
}
