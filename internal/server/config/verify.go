package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyRegistry(&cfg.Registry); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Address == "" {
		return errors.New("server.http.address is required")
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		return errors.New("server.http.rate_burst must be at least 1 when rate limiting")
	}
	if cfg.StatusInterval <= 0 {
		return errors.New("server.status_interval must be positive")
	}
	return nil
}

func verifyRegistry(cfg *RegistrySection) error {
	if cfg.MaxBytes == 0 {
		return errors.New("registry.max_bytes is required")
	}
	if cfg.TTL <= 0 {
		return errors.New("registry.ttl is required")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("registry.sweep_interval is required")
	}
	if cfg.MaxLive <= 0 {
		return errors.New("registry.max_live is required")
	}
	if cfg.ReservationTimeout < 0 {
		return errors.New("registry.reservation_timeout must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if cfg.SnapshotPath == "" {
		return errors.New("storage.snapshot_path is required")
	}
	if cfg.CheckpointInterval < 0 {
		return errors.New("storage.checkpoint_interval must not be negative")
	}

	switch cfg.Backend {
	case BackendLocal:
	case BackendS3:
		if cfg.S3.Endpoint == "" {
			return errors.New("storage.s3.endpoint is required for the s3 backend")
		}
		if cfg.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, s3", cfg.Backend)
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return errors.New("cannot create storage directory: " + err.Error())
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
}
