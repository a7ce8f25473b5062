package config

import "time"

// ServerConfig is the root configuration for filebay-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Registry  RegistrySection  `koanf:"registry"`
	Storage   StorageSection   `koanf:"storage"`
	Log       LogSection       `koanf:"log"`
	Telemetry TelemetrySection `koanf:"telemetry"`
}

// ServerSection configures the HTTP surface.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// StatusInterval is the period of liveness pushes on /api/status.
	StatusInterval time.Duration `koanf:"status_interval"`

	// AdminSocket is the path of the local admin socket. Empty disables it.
	AdminSocket string `koanf:"admin_socket"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Address      string        `koanf:"address"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// RateLimit is requests per second per client IP on apply and
	// download. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// RegistrySection holds the file lifecycle limits.
type RegistrySection struct {
	MaxBytes      uint64        `koanf:"max_bytes"`
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxLive       int           `koanf:"max_live"`

	// ReservationTimeout reclaims an upload slot left idle this long.
	// Zero disables reclaiming.
	ReservationTimeout time.Duration `koanf:"reservation_timeout"`
}

// Blob backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// StorageSection configures blob and snapshot storage.
type StorageSection struct {
	Dir          string `koanf:"dir"`
	SnapshotPath string `koanf:"snapshot_path"`
	Backend      string `koanf:"backend"`

	// CheckpointInterval flushes the snapshot periodically. Zero means the
	// snapshot is written only at shutdown.
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`

	S3 S3Config `koanf:"s3"`
}

// S3Config configures the S3-compatible blob backend.
type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	Region    string `koanf:"region"`
	CAFile    string `koanf:"ca_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetrySection configures metrics exposure.
type TelemetrySection struct {
	MetricsEnabled bool `koanf:"metrics_enabled"`
}
