package config

import "time"

// Default configuration values. Registry limits and storage paths have no
// defaults and must be configured.
const (
	DefaultHTTPAddr       = "127.0.0.1:8080"
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 5 * time.Minute
	DefaultRateLimit      = 5.0
	DefaultRateBurst      = 20
	DefaultStatusInterval = 5 * time.Second

	DefaultBackend = BackendLocal

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Address:      DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				RateLimit:    DefaultRateLimit,
				RateBurst:    DefaultRateBurst,
			},
			StatusInterval: DefaultStatusInterval,
		},
		Storage: StorageSection{
			Backend: DefaultBackend,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			MetricsEnabled: true,
		},
	}
}
