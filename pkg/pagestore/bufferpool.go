package pagestore

import (
	"fmt"

	"dbwal/pkg/log"
	"dbwal/pkg/page"
)

// BufferPool is the transaction-facing half of this package: it composes a
// PageStore with a log.Writer and drives the write-ahead discipline around
// every page mutation, commit, and abort. It is grounded on the
// insert/update/commit/abort flow of a conventional NO-STEAL/FORCE buffer
// pool (log before dirtying, force dirty pages at commit before the commit
// record).
type BufferPool struct {
	store *PageStore
	wal   *log.Writer

	dirtyBy map[int64]map[string]page.Page // tid -> key -> dirtied page
}

// NewBufferPool wires store and wal together. wal must have been opened
// against the same store (so wal's PageStore capability calls land here).
func NewBufferPool(store *PageStore, wal *log.Writer) *BufferPool {
	return &BufferPool{
		store:   store,
		wal:     wal,
		dirtyBy: make(map[int64]map[string]page.Page),
	}
}

// Begin starts transaction tid.
func (b *BufferPool) Begin(tid int64) error {
	return b.wal.Begin(tid)
}

// Put installs after as tid's new version of the page after is for,
// logging the update (before's image alongside after's) and staging after
// as dirty. Nothing is written to the table file until Commit or a
// checkpoint flushes it.
func (b *BufferPool) Put(tid int64, before, after page.Page) error {
	b.store.PoolMutex().Lock()
	defer b.store.PoolMutex().Unlock()

	if err := b.wal.Update(tid, before, after); err != nil {
		return err
	}
	b.store.stageDirty(after)

	key := idKey(after.ID())
	set, ok := b.dirtyBy[tid]
	if !ok {
		set = make(map[string]page.Page)
		b.dirtyBy[tid] = set
	}
	set[key] = after
	return nil
}

// Get returns tid's current view of id: whatever tid (or any other
// transaction, in this single-writer-at-a-time model) last wrote, or the
// on-disk copy if untouched.
func (b *BufferPool) Get(id page.ID) (page.Page, error) {
	b.store.PoolMutex().Lock()
	defer b.store.PoolMutex().Unlock()
	return b.store.LoadPage(id)
}

// Commit forces the log (so tid's UPDATE records are durable first), then
// forces every page tid dirtied to its table file, then commits the log
// record. This is the FORCE half of the pool's NO-STEAL/FORCE policy: by
// the time the log's COMMIT record is durable, so is every page the
// transaction touched.
func (b *BufferPool) Commit(tid int64) error {
	b.store.PoolMutex().Lock()
	defer b.store.PoolMutex().Unlock()

	if err := b.wal.Force(); err != nil {
		return fmt.Errorf("commit tid %d: %w", tid, err)
	}
	for _, pg := range b.dirtyBy[tid] {
		if err := b.store.WritePage(pg); err != nil {
			return fmt.Errorf("commit tid %d: %w", tid, err)
		}
	}
	delete(b.dirtyBy, tid)

	if err := b.wal.Commit(tid); err != nil {
		return fmt.Errorf("commit tid %d: %w", tid, err)
	}
	return nil
}

// Abort rolls tid back via the log (which writes every before-image
// directly, discarding this pool's cached after-images along the way) and
// drops tid's dirty bookkeeping.
func (b *BufferPool) Abort(tid int64) error {
	b.store.PoolMutex().Lock()
	defer b.store.PoolMutex().Unlock()

	if err := b.wal.Abort(tid); err != nil {
		return fmt.Errorf("abort tid %d: %w", tid, err)
	}
	delete(b.dirtyBy, tid)
	return nil
}

// Checkpoint forces a log checkpoint. The pool mutex is held for its
// duration, consistent with the pool-before-log lock ordering every other
// cross-cutting operation here follows.
func (b *BufferPool) Checkpoint() error {
	b.store.PoolMutex().Lock()
	defer b.store.PoolMutex().Unlock()
	return b.wal.Checkpoint()
}

// Recover replays the log. Must be called once, before Begin is ever
// called for any transaction.
func (b *BufferPool) Recover() error {
	b.store.PoolMutex().Lock()
	defer b.store.PoolMutex().Unlock()
	return b.wal.Recover()
}

// Close releases the buffer pool's table files and the log file.
func (b *BufferPool) Close() error {
	if err := b.wal.Close(); err != nil {
		return err
	}
	return b.store.Close()
}

// Shutdown checkpoints the log and then releases everything Close does.
// This is the orderly-shutdown path; Close alone skips the checkpoint and
// leaves whatever Recover would need to redo for the next Open.
func (b *BufferPool) Shutdown() error {
	if err := b.Checkpoint(); err != nil {
		return err
	}
	return b.Close()
}
