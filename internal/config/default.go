package config

import (
	"time"

	"github.com/yndnr/memgate-go/internal/core/service"
)

// Default configuration values.
const (
	DefaultStorageDriver = "sqlite"
	DefaultStoragePath   = "memgate.db"
	DefaultGCInterval    = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultMailPort    = 465
	DefaultMailTLS     = "implicit"
	DefaultMailTimeout = 30 * time.Second

	DefaultPacingMode  = PacingFixed
	DefaultPacingDelay = time.Second

	DefaultCommandPrefix = "!"
	DefaultCommand       = "verify"
	DefaultStatusAddr    = "127.0.0.1:9090"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Driver:     DefaultStorageDriver,
			Path:       DefaultStoragePath,
			GCInterval: DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Mail: MailSection{
			Port:    DefaultMailPort,
			TLS:     DefaultMailTLS,
			Timeout: DefaultMailTimeout,
		},
		Issuer: IssuerSection{
			Subject: service.DefaultSubject,
			Pacing: PacingSection{
				Mode:  DefaultPacingMode,
				Delay: DefaultPacingDelay,
				Burst: 1,
			},
		},
		Redeemer: RedeemerSection{
			CommandPrefix: DefaultCommandPrefix,
			Command:       DefaultCommand,
			StatusAddr:    DefaultStatusAddr,
			UsageTTL:      service.DefaultUsageTTL,
			ErrorTTL:      service.DefaultErrorTTL,
			WelcomeTTL:    service.DefaultWelcomeTTL,
		},
	}
}
