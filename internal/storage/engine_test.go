package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/twinisland/filebay/internal/core/domain"
	"github.com/twinisland/filebay/internal/storage/blob"
	"github.com/twinisland/filebay/internal/storage/memory"
	"github.com/twinisland/filebay/internal/storage/snapshot"
)

type testEnv struct {
	dir    string
	blobs  *blob.Local
	snap   *snapshot.Manager
	engine *Engine
}

func newTestEnv(t *testing.T, dir string) *testEnv {
	t.Helper()
	return newTestEnvWith(t, dir, nil)
}

// newTestEnvWith lets wrap replace the backend the engine sees; put still
// writes through the plain local backend.
func newTestEnvWith(t *testing.T, dir string, wrap func(*blob.Local) blob.Backend) *testEnv {
	t.Helper()
	blobs, err := blob.NewLocal(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	snap, err := snapshot.NewManager(snapshot.DefaultConfig(filepath.Join(dir, "filebay.snap")))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	var backend blob.Backend = blobs
	if wrap != nil {
		backend = wrap(blobs)
	}
	engine, err := New(DefaultConfig(16), backend, snap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return &testEnv{dir: dir, blobs: blobs, snap: snap, engine: engine}
}

// put stores a committed blob and its record the way finalize does.
func (env *testEnv) put(t *testing.T, name, content string, code domain.Code) uint64 {
	t.Helper()
	ctx := context.Background()
	var id uint64
	err := env.engine.Update(func(tx *Txn) error {
		id = tx.NextID()
		if _, err := env.blobs.Append(ctx, id, 0, strings.NewReader(content)); err != nil {
			return err
		}
		if err := env.blobs.Commit(ctx, id); err != nil {
			return err
		}
		if _, err := tx.Append(domain.FileRecord{
			Name:      name,
			Size:      uint64(len(content)),
			ExpiresAt: time.Now().Add(time.Hour),
			Code:      code,
		}); err != nil {
			return err
		}
		return tx.Insert(code, id)
	})
	if err != nil {
		t.Fatalf("put %s: %v", name, err)
	}
	return id
}

func TestEngine_NewValidation(t *testing.T) {
	dir := t.TempDir()
	blobs, _ := blob.NewLocal(dir)
	snap, _ := snapshot.NewManager(snapshot.DefaultConfig(filepath.Join(dir, "s.snap")))

	if _, err := New(Config{}, blobs, snap); err == nil {
		t.Error("expected error for zero max_live")
	}
	if _, err := New(DefaultConfig(1), nil, snap); err == nil {
		t.Error("expected error for nil blob backend")
	}
}

func TestEngine_ViewIsReadOnly(t *testing.T) {
	env := newTestEnv(t, t.TempDir())

	err := env.engine.View(func(tx *Txn) error {
		if _, err := tx.Append(domain.FileRecord{}); !errors.Is(err, ErrReadOnly) {
			t.Errorf("Append in View error = %v, want ErrReadOnly", err)
		}
		if err := tx.SetReservation(domain.Reservation{}); !errors.Is(err, ErrReadOnly) {
			t.Errorf("SetReservation in View error = %v, want ErrReadOnly", err)
		}
		if _, err := tx.Evict(0); !errors.Is(err, ErrReadOnly) {
			t.Errorf("Evict in View error = %v, want ErrReadOnly", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestEngine_EvictGuardsIndex(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	first := env.put(t, "a", "aaa", 123456)

	// second record with the same code is created but collides
	var second uint64
	_ = env.engine.Update(func(tx *Txn) error {
		second, _ = tx.Append(domain.FileRecord{Name: "b", Code: 123456})
		if err := tx.Insert(123456, second); !errors.Is(err, memory.ErrCollision) {
			t.Errorf("Insert duplicate error = %v, want ErrCollision", err)
		}
		return nil
	})

	_ = env.engine.Update(func(tx *Txn) error {
		if live, _ := tx.Evict(second); !live {
			t.Error("Evict(second) should report a live record")
		}
		if live, _ := tx.Evict(second); live {
			t.Error("second Evict should be a no-op")
		}
		return nil
	})

	_ = env.engine.View(func(tx *Txn) error {
		id, ok := tx.Lookup(123456)
		if !ok || id != first {
			t.Errorf("Lookup after evicting collided record = (%d, %v), want (%d, true)", id, ok, first)
		}
		return nil
	})

	st := env.engine.Stats()
	if st.Live != 1 || st.Slots != 2 {
		t.Fatalf("Stats = %+v, want Live 1 Slots 2", st)
	}
	if st.Allocated < st.Slots {
		t.Fatalf("Allocated = %d, want at least %d", st.Allocated, st.Slots)
	}
}

func TestEngine_FlushRecoverRenamesBlobs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := newTestEnv(t, dir)
	env.put(t, "zero.txt", "0", 200000)
	env.put(t, "one.txt", "11", 300001)
	env.put(t, "two.txt", "222", 400002)

	// evict the first record but leave its blob behind
	_ = env.engine.Update(func(tx *Txn) error {
		_, err := tx.Evict(0)
		return err
	})
	// interrupted upload
	_, _ = env.blobs.Append(ctx, 3, 0, strings.NewReader("partial"))

	info, err := env.engine.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if info.Records != 2 {
		t.Fatalf("Flush Records = %d, want 2", info.Records)
	}
	env.engine.Close()

	// restart on the same directory
	env2 := newTestEnv(t, dir)
	stats, err := env2.engine.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	// the evicted record's leftover blob is an orphan
	if stats.Loaded != 2 || stats.Renamed != 2 || stats.Orphans != 1 {
		t.Fatalf("RecoverStats = %+v, want Loaded 2 Renamed 2 Orphans 1", stats)
	}

	checks := map[domain.Code]string{300001: "11", 400002: "222"}
	for code, want := range checks {
		var rec domain.FileRecord
		_ = env2.engine.View(func(tx *Txn) error {
			id, ok := tx.Lookup(code)
			if !ok {
				t.Fatalf("Lookup(%d) missed after recover", code)
			}
			rec, _ = tx.Get(id)
			return nil
		})
		rc, _, err := env2.blobs.Open(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Open(%d): %v", rec.ID, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want {
			t.Fatalf("blob for %d = %q, want %q", code, data, want)
		}
	}

	ids, _ := env2.blobs.List(ctx)
	slices.Sort(ids)
	if !slices.Equal(ids, []uint64{0, 1}) {
		t.Fatalf("blobs after recover = %v, want [0 1]", ids)
	}
	if _, err := os.Stat(filepath.Join(dir, "blobs", "3.part")); !os.IsNotExist(err) {
		t.Fatalf("staging blob survived recovery: %v", err)
	}
}

func TestEngine_RecoverSkipsMissingBlobAndPurgesOrphans(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := newTestEnv(t, dir)
	env.put(t, "a", "a", 111111)
	env.put(t, "b", "b", 222222)
	if _, err := env.engine.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	env.engine.Close()

	_ = env.blobs.Remove(ctx, 0)
	_, _ = env.blobs.Append(ctx, 9, 0, strings.NewReader("stray"))
	_ = env.blobs.Commit(ctx, 9)

	env2 := newTestEnv(t, dir)
	stats, err := env2.engine.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stats.Loaded != 1 || stats.Skipped != 1 || stats.Orphans != 1 {
		t.Fatalf("RecoverStats = %+v, want Loaded 1 Skipped 1 Orphans 1", stats)
	}
}

func TestEngine_RecoverVersionMismatchLeavesStoreEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "filebay.snap"), []byte{snapshot.FormatVersion + 1}, 0o600); err != nil {
		t.Fatal(err)
	}

	env := newTestEnv(t, dir)
	_, err := env.engine.Recover(context.Background())
	if !errors.Is(err, snapshot.ErrVersionMismatch) {
		t.Fatalf("Recover error = %v, want ErrVersionMismatch", err)
	}
	if st := env.engine.Stats(); st.Slots != 0 {
		t.Fatalf("Slots = %d after failed recover, want 0", st.Slots)
	}
}

func TestEngine_CheckpointLoop(t *testing.T) {
	dir := t.TempDir()
	blobs, _ := blob.NewLocal(filepath.Join(dir, "blobs"))
	snap, _ := snapshot.NewManager(snapshot.DefaultConfig(filepath.Join(dir, "cp.snap")))

	cfg := DefaultConfig(4)
	cfg.CheckpointInterval = 20 * time.Millisecond
	engine, err := New(cfg, blobs, snap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	time.Sleep(60 * time.Millisecond)
	if _, err := os.Stat(snap.Path()); !os.IsNotExist(err) {
		t.Fatalf("checkpoint ran before Recover: %v", err)
	}

	if _, err := engine.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(snap.Path()); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("checkpoint loop did not write a snapshot")
}

// readCode returns the name and blob content a code resolves to.
func (env *testEnv) readCode(t *testing.T, code domain.Code) (name, content string, ok bool) {
	t.Helper()
	var rec domain.FileRecord
	_ = env.engine.View(func(tx *Txn) error {
		var id uint64
		if id, ok = tx.Lookup(code); ok {
			rec, _ = tx.Get(id)
		}
		return nil
	})
	if !ok {
		return "", "", false
	}
	rc, _, err := env.blobs.Open(context.Background(), rec.ID)
	if err != nil {
		return rec.Name, "", true
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return rec.Name, string(data), true
}

func TestEngine_RecoverAfterUnflushedUpload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := newTestEnv(t, dir)
	env.put(t, "a.txt", "AAAA", 111111)
	env.put(t, "b.txt", "BBBB", 222222)
	_ = env.engine.Update(func(tx *Txn) error {
		_, err := tx.Evict(0)
		return err
	})
	_ = env.blobs.Remove(ctx, 0)
	if _, err := env.engine.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	env.engine.Close()

	// b.txt moves from id 1 to id 0, then c.txt takes id 1 and the
	// process dies without flushing
	env2 := newTestEnv(t, dir)
	if _, err := env2.engine.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if id := env2.put(t, "c.txt", "CCCC", 333333); id != 1 {
		t.Fatalf("c.txt id = %d, want 1", id)
	}
	env2.engine.Close()

	env3 := newTestEnv(t, dir)
	if _, err := env3.engine.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	name, content, ok := env3.readCode(t, 222222)
	if !ok || name != "b.txt" || content != "BBBB" {
		t.Fatalf("code 222222 = (%q, %q, %v), want (b.txt, BBBB, true)", name, content, ok)
	}
	if _, _, ok := env3.readCode(t, 333333); ok {
		t.Fatal("unflushed upload should not survive a crash")
	}
	ids, _ := env3.blobs.List(ctx)
	if !slices.Equal(ids, []uint64{0}) {
		t.Fatalf("blobs = %v, want [0]", ids)
	}
}

// haltingBlobs stops the calling goroutine on the n-th Rename, the way a
// crash would stop recovery.
type haltingBlobs struct {
	*blob.Local
	renames int
	haltAt  int
}

func (h *haltingBlobs) Rename(ctx context.Context, from, to uint64) error {
	h.renames++
	if h.renames == h.haltAt {
		runtime.Goexit()
	}
	return h.Local.Rename(ctx, from, to)
}

func TestEngine_RecoverCrashAtEveryRename(t *testing.T) {
	files := map[domain.Code]string{
		200001: "one",
		300003: "three",
		400004: "four",
	}

	// three moves: a park and an unpark each
	for haltAt := 1; haltAt <= 6; haltAt++ {
		dir := t.TempDir()
		ctx := context.Background()

		env := newTestEnv(t, dir)
		env.put(t, "zero", "zero", 100000)
		env.put(t, "one", "one", 200001)
		env.put(t, "two", "two", 300002)
		env.put(t, "three", "three", 300003)
		env.put(t, "four", "four", 400004)
		_ = env.engine.Update(func(tx *Txn) error {
			_, _ = tx.Evict(0)
			_, err := tx.Evict(2)
			return err
		})
		_ = env.blobs.Remove(ctx, 0)
		_ = env.blobs.Remove(ctx, 2)
		if _, err := env.engine.Flush(ctx); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		env.engine.Close()

		crashed := newTestEnvWith(t, dir, func(l *blob.Local) blob.Backend {
			return &haltingBlobs{Local: l, haltAt: haltAt}
		})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = crashed.engine.Recover(ctx)
		}()
		<-done

		env3 := newTestEnv(t, dir)
		if _, err := env3.engine.Recover(ctx); err != nil {
			t.Fatalf("halt at rename %d: Recover: %v", haltAt, err)
		}
		for code, want := range files {
			name, content, ok := env3.readCode(t, code)
			if !ok {
				continue
			}
			if name != want || content != want {
				t.Fatalf("halt at rename %d: code %d = (%q, %q), want %q",
					haltAt, code, name, content, want)
			}
		}
	}
}

// failingUnpark fails every Rename out of the parking range.
type failingUnpark struct {
	*blob.Local
	parkBase uint64
}

func (f *failingUnpark) Rename(ctx context.Context, from, to uint64) error {
	if from >= f.parkBase {
		return errors.New("rename refused")
	}
	return f.Local.Rename(ctx, from, to)
}

func TestEngine_RecoverDropsRecordWhenUnparkFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	env := newTestEnv(t, dir)
	env.put(t, "a", "a", 111111)
	env.put(t, "b", "b", 222222)
	_ = env.engine.Update(func(tx *Txn) error {
		_, err := tx.Evict(0)
		return err
	})
	_ = env.blobs.Remove(ctx, 0)
	if _, err := env.engine.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	env.engine.Close()

	env2 := newTestEnvWith(t, dir, func(l *blob.Local) blob.Backend {
		return &failingUnpark{Local: l, parkBase: 2}
	})
	stats, err := env2.engine.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stats.Loaded != 0 || stats.Renamed != 0 || stats.Skipped != 1 {
		t.Fatalf("RecoverStats = %+v, want Loaded 0 Renamed 0 Skipped 1", stats)
	}
	if _, _, ok := env2.readCode(t, 222222); ok {
		t.Fatal("record without a blob is still reachable")
	}
	if ids, _ := env2.blobs.List(ctx); len(ids) != 0 {
		t.Fatalf("blobs = %v, want none", ids)
	}
}
