package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/twinisland/filebay/internal/infra/confloader"
)

// EnvPrefix is the environment prefix for CLI settings.
const EnvPrefix = "FILEBAY_CLI_"

// DefaultChunkSize is the upload chunk size when none is configured.
const DefaultChunkSize = 1 << 20

// CLIConfig holds filebay-cli defaults.
type CLIConfig struct {
	Server    string `koanf:"server"`
	Output    string `koanf:"output"`
	ChunkSize int64  `koanf:"chunk_size"`
}

// Default returns the built-in CLI defaults.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:    "http://127.0.0.1:8080",
		Output:    "table",
		ChunkSize: DefaultChunkSize,
	}
}

// DefaultPath returns ~/.filebay/cli.yaml, or "" when there is no home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".filebay", "cli.yaml")
}

// Load reads path over the defaults, then the environment, then overrides
// keyed like the file ("server", "output", "chunk_size"). A missing file
// is not an error.
func Load(path string, overrides map[string]any) (*CLIConfig, error) {
	cfg := Default()

	opts := []confloader.Option{
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithOverrides(overrides),
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			opts = append(opts, confloader.WithConfigFile(path))
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive, got %d", cfg.ChunkSize)
	}
	return cfg, nil
}
