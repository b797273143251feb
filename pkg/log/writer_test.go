package log

import (
	"path/filepath"
	"testing"
)

func openTestWriter(t *testing.T) (*Writer, *memStore) {
	t.Helper()
	store := newMemStore()
	path := filepath.Join(t.TempDir(), "wal.log")
	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	w, err := Open(cfg, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, store
}

func TestBeginThenCommit(t *testing.T) {
	w, _ := openTestWriter(t)

	if err := w.Begin(1); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := w.Commit(1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, ok := w.liveTx[1]; ok {
		t.Fatalf("tid 1 still live after commit")
	}
}

func TestDuplicateBeginRejected(t *testing.T) {
	w, _ := openTestWriter(t)

	if err := w.Begin(1); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := w.Begin(1); err == nil {
		t.Fatalf("expected ErrDuplicateBegin, got nil")
	}
}

func TestUpdateWithoutBeginRejected(t *testing.T) {
	w, _ := openTestWriter(t)

	before := mockPage(1, 100, 0x00)
	after := mockPage(1, 100, 0xff)
	if err := w.Update(1, before, after); err == nil {
		t.Fatalf("expected ErrUnknownTID, got nil")
	}
}

func TestCommitUnknownTIDRejected(t *testing.T) {
	w, _ := openTestWriter(t)
	if err := w.Commit(42); err == nil {
		t.Fatalf("expected ErrUnknownTID, got nil")
	}
}

func TestAbortRollsBackBeforeImage(t *testing.T) {
	w, store := openTestWriter(t)

	if err := w.Begin(1); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	before := mockPage(1, 100, 0x00)
	after := mockPage(1, 100, 0xff)
	if err := w.Update(1, before, after); err != nil {
		t.Fatalf("Update: %v", err)
	}

	store.PoolMutex().Lock()
	err := w.Abort(1)
	store.PoolMutex().Unlock()
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}

	id := before.ID()
	got, ok := store.pages[store.key(id)]
	if !ok {
		t.Fatalf("expected page %v to be written back during rollback", id)
	}
	if string(got.Data()) != string(before.Data()) {
		t.Fatalf("rollback wrote %v, want before-image %v", got.Data(), before.Data())
	}
	if _, ok := w.liveTx[1]; ok {
		t.Fatalf("tid 1 still live after abort")
	}
}

func TestShutdownCheckpointsThenCloses(t *testing.T) {
	w, store := openTestWriter(t)

	if err := w.Begin(1); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := w.Commit(1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	store.PoolMutex().Lock()
	off, err := w.readHeaderLocked()
	store.PoolMutex().Unlock()
	if err != nil {
		t.Fatalf("readHeaderLocked: %v", err)
	}
	if off != noCheckpoint {
		t.Fatalf("test setup: expected no checkpoint yet, got %d", off)
	}

	store.PoolMutex().Lock()
	err = w.Shutdown()
	store.PoolMutex().Unlock()
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := w.file.Stat(); err == nil {
		t.Fatalf("expected the log file handle to be closed after Shutdown")
	}
}

// TestOpenWithoutRecoverDiscardsStaleLog checks that appending to a
// previously-written log without calling Recover first wipes the file's
// prior content: the caller has chosen not to recover it.
func TestOpenWithoutRecoverDiscardsStaleLog(t *testing.T) {
	store := newMemStore()
	path := filepath.Join(t.TempDir(), "wal.log")
	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	w1, err := Open(cfg, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w1.Begin(1); err != nil {
		t.Fatalf("Begin 1: %v", err)
	}
	before := mockPage(9, 1, 0x00)
	after := mockPage(9, 1, 0xEE)
	if err := w1.Update(1, before, after); err != nil {
		t.Fatalf("Update 1: %v", err)
	}
	// tid 1 never commits or aborts; w1 is abandoned without Recover ever
	// running and without Close flushing anything further.
	w1.file.Close()

	w2, err := Open(cfg, store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { w2.Close() })

	// First write without calling Recover: this must discard tid 1's
	// stale, never-decided content rather than append after it.
	if err := w2.Begin(99); err != nil {
		t.Fatalf("Begin 99: %v", err)
	}
	if err := w2.Commit(99); err != nil {
		t.Fatalf("Commit 99: %v", err)
	}

	store.PoolMutex().Lock()
	err = w2.Recover()
	store.PoolMutex().Unlock()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if _, ok := store.pages[store.key(after.ID())]; ok {
		t.Fatalf("discarded tid 1's update should never have been redone")
	}
}
