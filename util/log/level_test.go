package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	tests := []struct {
		level string
		want  bool
	}{
		{"debug", true},
		{"trace", true},
		{"DEBUG", true},
		{"info", false},
		{"warn", false},
		{"", false},
	}

	for _, tt := range tests {
		SetLevel(tt.level)
		assert.Equal(t, tt.want, debugEnabled(), "level %q", tt.level)
	}
}
