package snapshot

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
)

// Config configures the snapshot manager.
type Config struct {
	// Path is the snapshot file.
	Path string

	// FileMode is the permission of the written file.
	FileMode os.FileMode
}

// DefaultConfig returns a Config for the given snapshot path.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		FileMode: 0o600,
	}
}

// Info describes a written or loaded snapshot.
type Info struct {
	Path      string
	Records   int
	Size      int64
	CreatedAt time.Time
	Truncated bool
}

// Manager reads and atomically replaces a single snapshot file.
type Manager struct {
	cfg Config
}

// NewManager creates a manager and ensures the parent directory exists.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Path == "" {
		return nil, errors.New("snapshot: path is required")
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o600
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create directory: %w", err)
	}
	return &Manager{cfg: cfg}, nil
}

// Path returns the snapshot file path.
func (m *Manager) Path() string {
	return m.cfg.Path
}

// Save writes the live records to a temp file, syncs it and renames it over
// the snapshot path.
func (m *Manager) Save(records iter.Seq[domain.FileRecord]) (*Info, error) {
	dir := filepath.Dir(m.cfg.Path)
	file, err := os.CreateTemp(dir, filepath.Base(m.cfg.Path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tempPath := file.Name()
	defer os.Remove(tempPath)

	n, err := Encode(file, records)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Chmod(m.cfg.FileMode); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: chmod: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat: %w", err)
	}

	if err := os.Rename(tempPath, m.cfg.Path); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}
	syncDir(dir)

	return &Info{
		Path:      m.cfg.Path,
		Records:   n,
		Size:      stat.Size(),
		CreatedAt: time.Now(),
	}, nil
}

// Load decodes the snapshot file. A missing file is an empty snapshot.
// On ErrVersionMismatch no records are returned.
func (m *Manager) Load() ([]domain.FileRecord, *Info, error) {
	file, err := os.Open(m.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &Info{Path: m.cfg.Path}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer file.Close()

	res, err := Decode(file)
	if err != nil {
		return nil, nil, err
	}

	info := &Info{
		Path:      m.cfg.Path,
		Records:   len(res.Records),
		Truncated: res.Truncated,
	}
	if stat, err := file.Stat(); err == nil {
		info.Size = stat.Size()
		info.CreatedAt = stat.ModTime()
	}
	return res.Records, info, nil
}

// syncDir makes the rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
