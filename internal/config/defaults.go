package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8190
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1 * 1024 * 1024 // 1MB, webhook bodies are small

	// Database defaults.
	DefaultDBPath       = "stampwire.db"
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Receiver defaults.
	DefaultEndpointsFile = "endpoints.yaml"
	DefaultTolerance     = 5 * time.Minute

	// Dispatcher defaults.
	DefaultMaxAttempts    = 5
	DefaultBaseDelay      = 1 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second

	// Admin defaults.
	DefaultAdminTokenTTL = 1 * time.Hour
	DefaultJWTIssuer     = "stampwire"

	// Retention defaults.
	DefaultRetentionSchedule = "@hourly"
	DefaultReceiptMaxAge     = 7 * 24 * time.Hour
	DefaultQueueMaxAge       = 24 * time.Hour

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
				MaxAge:         12 * time.Hour,
			},
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			BusyTimeout:  DefaultBusyTimeout,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Receiver: ReceiverConfig{
			EndpointsFile: DefaultEndpointsFile,
			Tolerance:     DefaultTolerance,
		},
		Dispatcher: DispatcherConfig{
			Enabled:        true,
			MaxAttempts:    DefaultMaxAttempts,
			BaseDelay:      DefaultBaseDelay,
			PollInterval:   DefaultPollInterval,
			RequestTimeout: DefaultRequestTimeout,
		},
		Admin: AdminConfig{
			Enabled: false,
			JWT: JWTConfig{
				TTL:    DefaultAdminTokenTTL,
				Issuer: DefaultJWTIssuer,
			},
		},
		Retention: RetentionConfig{
			Schedule:      DefaultRetentionSchedule,
			ReceiptMaxAge: DefaultReceiptMaxAge,
			QueueMaxAge:   DefaultQueueMaxAge,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
