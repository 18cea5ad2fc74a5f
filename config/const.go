package config

// AppVersion is the version of the application.
var AppVersion string // Set via -ldflags at build time

// ServiceName is the name of the application.
const ServiceName = "GooglePicz"

// KeyringService is the service name used for OS keychain entries.
const KeyringService = ServiceName

// CacheDirName is the per-user directory holding the cache database,
// the config file, token fallback storage and logs.
const CacheDirName = ".googlepicz"

// ConfigFileName is the name of the TOML config file inside the cache directory.
const ConfigFileName = "config"

// CacheDBFileName is the name of the SQLite cache database.
const CacheDBFileName = "cache.sqlite"

// TokensFileName is the name of the token fallback file store.
const TokensFileName = "tokens.json"

// LogExt is the file extension for log files.
const LogExt = ".log"

// DefaultOAuthRedirectPort is the loopback port the OAuth flow listens on.
const DefaultOAuthRedirectPort = 8080

// DefaultSyncIntervalMinutes is the periodic sync interval.
const DefaultSyncIntervalMinutes = 5

// DefaultThumbnailsPreload is the number of thumbnails the UI preloads.
const DefaultThumbnailsPreload = 20

// DefaultPreloadThreads is the number of concurrent thumbnail loaders.
const DefaultPreloadThreads = 4
