// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Pages    PagesConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds settings of the backing store.
type DatabaseConfig struct {
	// Driver selects the backend: sqlite or postgres (default: sqlite)
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// URL is the connection string: a file path/DSN for sqlite, a
	// postgres URL otherwise. Supports DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of open connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// EngineConfig holds the table engine settings.
type EngineConfig struct {
	// LockStaleness is the age after which an abandoned record lock may
	// be taken over by another user (default: 1h)
	LockStaleness time.Duration `env:"ENGINE_LOCK_STALENESS" default:"1h"`

	// LogRetention bounds the age of change log entries (default: 720h)
	LogRetention time.Duration `env:"ENGINE_LOG_RETENTION" default:"720h"`

	// YearPivot resolves two-digit year input: values at or below the
	// pivot belong to the 2000s (default: 40)
	YearPivot int `env:"ENGINE_YEAR_PIVOT" default:"40"`

	// PagerRadius is the number of page links on each side of the
	// current page (default: 3)
	PagerRadius int `env:"ENGINE_PAGER_RADIUS" default:"3"`

	// PageSizes are the offered rows-per-page options (default: 10,20,50,100,200)
	PageSizes []int `env:"ENGINE_PAGE_SIZES" default:"10,20,50,100,200"`

	// MaxUploadSize bounds attached files in bytes (default: 2MiB)
	MaxUploadSize int64 `env:"ENGINE_MAX_UPLOAD_SIZE" default:"2097152"`

	// CustomViews enables raw SELECT passthrough in block options and
	// related column types. The SQL comes from page content, so this is
	// off unless explicitly enabled (default: false)
	CustomViews bool `env:"ENGINE_CUSTOM_VIEWS" default:"false"`

	// Aliasing enables columns backed by SQL expressions (default: false)
	Aliasing bool `env:"ENGINE_ALIASING" default:"false"`

	// CheckMailDomains enables DNS validation of email input (default: false)
	CheckMailDomains bool `env:"ENGINE_CHECK_MAIL_DOMAINS" default:"false"`
}

// PagesConfig controls where pages live and on which of them table blocks
// are honored.
type PagesConfig struct {
	// Dir is the directory holding the page source files (default: pages)
	Dir string `env:"PAGES_DIR" default:"pages"`

	// Start is the page served at the site root (default: start)
	Start string `env:"PAGES_START" default:"start"`

	// EnableAll honors table blocks on every page (default: false)
	EnableAll bool `env:"PAGES_ENABLE_ALL" default:"false"`

	// Enabled is a comma-separated list of page patterns on which table
	// blocks are honored. Glob by default, /.../ for a regular
	// expression.
	Enabled []string `env:"PAGES_ENABLED"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// SessionSecret keys the request integrity tokens (required)
	SessionSecret string `env:"SESSION_SECRET" required:"true"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AdminUsers is a comma-separated list of login names granted the
	// admin console and admin-only column types
	AdminUsers []string `env:"ADMIN_USERS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
