// Package config provides configuration management for stampwire.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for stampwire.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Receiver   ReceiverConfig   `mapstructure:"receiver"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes. Deliveries larger than this
	// are rejected before verification.
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// CORS settings
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enable CORS
	Enabled bool `mapstructure:"enabled"`

	// Allowed origins (use ["*"] for all)
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// Max age for preflight cache
	MaxAge time.Duration `mapstructure:"max_age"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// ReceiverConfig holds inbound delivery settings.
type ReceiverConfig struct {
	// Path to the endpoints file mapping endpoint names to signing
	// secrets. Hot-reloaded on change.
	EndpointsFile string `mapstructure:"endpoints_file"`

	// Tolerance is the timestamp freshness window, applied symmetrically
	// to stale and future-skewed deliveries.
	Tolerance time.Duration `mapstructure:"tolerance"`
}

// DispatcherConfig holds outbound delivery settings.
type DispatcherConfig struct {
	// Enable the outbound dispatcher worker
	Enabled bool `mapstructure:"enabled"`

	// Maximum delivery attempts before a delivery moves to the DLQ
	MaxAttempts int `mapstructure:"max_attempts"`

	// Base delay for exponential backoff between attempts
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// How often the worker polls the queue
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Per-attempt HTTP timeout. Receivers must answer 2xx within this
	// window for the attempt to count as delivered.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	// Enable the admin API
	Enabled bool `mapstructure:"enabled"`

	// JWT settings for admin bearer tokens
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig holds JWT settings for the admin API.
type JWTConfig struct {
	// Secret key for signing tokens (required when admin API is enabled,
	// min 32 chars)
	Secret string `mapstructure:"secret"`

	// Token lifetime
	TTL time.Duration `mapstructure:"ttl"`

	// JWT issuer claim
	Issuer string `mapstructure:"issuer"`
}

// RetentionConfig holds cleanup settings for stored receipts and
// terminal queue rows.
type RetentionConfig struct {
	// Cron schedule for the purge job
	Schedule string `mapstructure:"schedule"`

	// How long to keep delivery receipts. Receipts also bound the
	// idempotency window: a delivery ID seen within this age is treated
	// as a duplicate.
	ReceiptMaxAge time.Duration `mapstructure:"receipt_max_age"`

	// How long to keep delivered/failed queue rows
	QueueMaxAge time.Duration `mapstructure:"queue_max_age"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
