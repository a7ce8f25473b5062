package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const stagingSuffix = ".part"

// Local stores blobs as files in a single directory: <dir>/<id> once
// committed and <dir>/<id>.part while staging.
type Local struct {
	dir string
}

// NewLocal creates the directory if needed and returns a Local backend.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("blob: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the backing directory.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) path(id uint64) string {
	return filepath.Join(l.dir, Key(id))
}

func (l *Local) stagingPath(id uint64) string {
	return filepath.Join(l.dir, Key(id)+stagingSuffix)
}

// Append implements Backend.
func (l *Local) Append(_ context.Context, id uint64, offset int64, r io.Reader) (int64, error) {
	path := l.stagingPath(id)

	flag := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		flag |= os.O_TRUNC
	} else {
		flag |= os.O_APPEND
	}

	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return 0, fmt.Errorf("blob: open staging %d: %w", id, err)
	}
	defer f.Close()

	if offset > 0 {
		st, err := f.Stat()
		if err != nil {
			return 0, fmt.Errorf("blob: stat staging %d: %w", id, err)
		}
		if st.Size() != offset {
			return 0, fmt.Errorf("%w: staged %d, offset %d", ErrOffset, st.Size(), offset)
		}
	}

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("blob: write staging %d: %w", id, err)
	}
	return n, nil
}

// Commit implements Backend. An id with nothing staged commits an empty blob.
func (l *Local) Commit(_ context.Context, id uint64) error {
	staging := l.stagingPath(id)

	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("blob: open staging %d: %w", id, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("blob: sync %d: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("blob: close %d: %w", id, err)
	}

	if err := os.Rename(staging, l.path(id)); err != nil {
		return fmt.Errorf("blob: commit %d: %w", id, err)
	}
	return nil
}

// Open implements Backend.
func (l *Local) Open(_ context.Context, id uint64) (io.ReadCloser, int64, error) {
	f, err := os.Open(l.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("blob: open %d: %w", id, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("blob: stat %d: %w", id, err)
	}
	return f, st.Size(), nil
}

// Remove implements Backend.
func (l *Local) Remove(_ context.Context, id uint64) error {
	var errs []error
	for _, p := range []string{l.path(id), l.stagingPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("blob: remove %d: %w", id, errors.Join(errs...))
	}
	return nil
}

// Rename implements Backend.
func (l *Local) Rename(_ context.Context, from, to uint64) error {
	if from == to {
		return nil
	}
	err := os.Rename(l.path(from), l.path(to))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("blob: rename %d -> %d: %w", from, to, err)
	}
	return nil
}

// List implements Backend.
func (l *Local) List(_ context.Context) ([]uint64, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("blob: list: %w", err)
	}

	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if id, ok := ParseKey(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Purge implements Backend.
func (l *Local) Purge(_ context.Context) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("blob: purge: %w", err)
	}

	var errs []error
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, stagingSuffix) {
			continue
		}
		if _, ok := ParseKey(strings.TrimSuffix(name, stagingSuffix)); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("blob: purge: %w", errors.Join(errs...))
	}
	return nil
}
