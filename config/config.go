package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Package config loads and persists the application configuration. The
// config lives as a TOML document at <cache_dir>/config; missing files and
// missing keys fall back to defaults so a fresh install needs no setup.

// Config holds all application configuration data.
type Config struct {
	LogLevel            string `toml:"log_level"`
	OAuthRedirectPort   uint16 `toml:"oauth_redirect_port"`
	ThumbnailsPreload   int    `toml:"thumbnails_preload"`
	PreloadThreads      int    `toml:"preload_threads"`
	SyncIntervalMinutes uint64 `toml:"sync_interval_minutes"`
	DebugConsole        bool   `toml:"debug_console"`
	TraceSpans          bool   `toml:"trace_spans"`
	DetectFaces         bool   `toml:"detect_faces"`
	CachePath           string `toml:"cache_path"`
}

// Overrides carries command line or caller supplied settings that take
// precedence over the config file. Nil pointer fields are left untouched;
// the bool fields only ever force a setting on.
type Overrides struct {
	LogLevel            *string
	OAuthRedirectPort   *uint16
	ThumbnailsPreload   *int
	PreloadThreads      *int
	SyncIntervalMinutes *uint64
	DebugConsole        bool
	TraceSpans          bool
	DetectFaces         bool
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel:            "info",
		OAuthRedirectPort:   DefaultOAuthRedirectPort,
		ThumbnailsPreload:   DefaultThumbnailsPreload,
		PreloadThreads:      DefaultPreloadThreads,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		CachePath:           CacheDir(),
	}
}

// CacheDir returns the per-user cache directory, honoring $HOME.
func CacheDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, CacheDirName)
}

// DefaultFilename returns the path of the user's config file.
func DefaultFilename() string {
	return filepath.Join(CacheDir(), ConfigFileName)
}

// Load reads the config file at path, or the default location when path is
// empty. A missing or unreadable file yields the defaults; keys absent from
// the file keep their default values.
func Load(path string) *Config {
	if path == "" {
		path = DefaultFilename()
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return Default()
	}
	if cfg.CachePath == "" {
		cfg.CachePath = CacheDir()
	}
	return cfg
}

// Apply merges the given overrides into the config and returns it.
func (c *Config) Apply(ov *Overrides) *Config {
	if ov == nil {
		return c
	}
	if ov.LogLevel != nil {
		c.LogLevel = *ov.LogLevel
	}
	if ov.OAuthRedirectPort != nil {
		c.OAuthRedirectPort = *ov.OAuthRedirectPort
	}
	if ov.ThumbnailsPreload != nil {
		c.ThumbnailsPreload = *ov.ThumbnailsPreload
	}
	if ov.PreloadThreads != nil {
		c.PreloadThreads = *ov.PreloadThreads
	}
	if ov.SyncIntervalMinutes != nil {
		c.SyncIntervalMinutes = *ov.SyncIntervalMinutes
	}
	if ov.DebugConsole {
		c.DebugConsole = true
	}
	if ov.TraceSpans {
		c.TraceSpans = true
	}
	if ov.DetectFaces {
		c.DetectFaces = true
	}
	return c
}

// Save writes the config as TOML to path, or the default location when path
// is empty. Parent directories are created as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultFilename()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// DatabasePath returns the location of the SQLite cache database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.CachePath, CacheDBFileName)
}
