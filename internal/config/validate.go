package config

import (
	"fmt"
)

// Validate checks a Config for values that would break at runtime.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d", ErrInvalidConfig, cfg.Server.Port)
	}

	if cfg.Server.MaxBodySize <= 0 {
		return fmt.Errorf("%w: server.max_body_size must be positive", ErrInvalidConfig)
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("%w: database.path", ErrMissingRequired)
	}

	if cfg.Receiver.Tolerance <= 0 {
		return fmt.Errorf("%w: receiver.tolerance must be positive", ErrInvalidConfig)
	}

	if cfg.Dispatcher.Enabled {
		if cfg.Dispatcher.MaxAttempts < 1 {
			return fmt.Errorf("%w: dispatcher.max_attempts must be at least 1", ErrInvalidConfig)
		}
		if cfg.Dispatcher.BaseDelay <= 0 {
			return fmt.Errorf("%w: dispatcher.base_delay must be positive", ErrInvalidConfig)
		}
		if cfg.Dispatcher.PollInterval <= 0 {
			return fmt.Errorf("%w: dispatcher.poll_interval must be positive", ErrInvalidConfig)
		}
		if cfg.Dispatcher.RequestTimeout <= 0 {
			return fmt.Errorf("%w: dispatcher.request_timeout must be positive", ErrInvalidConfig)
		}
	}

	if cfg.Admin.Enabled {
		if len(cfg.Admin.JWT.Secret) < 32 {
			return fmt.Errorf("%w: admin.jwt.secret must be at least 32 characters when the admin API is enabled", ErrInvalidConfig)
		}
		if cfg.Admin.JWT.TTL <= 0 {
			return fmt.Errorf("%w: admin.jwt.ttl must be positive", ErrInvalidConfig)
		}
	}

	if cfg.Retention.Schedule == "" {
		return fmt.Errorf("%w: retention.schedule", ErrMissingRequired)
	}
	if cfg.Retention.ReceiptMaxAge <= 0 {
		return fmt.Errorf("%w: retention.receipt_max_age must be positive", ErrInvalidConfig)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}

	switch cfg.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("%w: logging.format must be json or console", ErrInvalidConfig)
	}

	return nil
}
