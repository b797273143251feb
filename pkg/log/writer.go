package log

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"dbwal/pkg/logging"
	"dbwal/pkg/page"
)

// headerSize is the width of the fixed header at offset 0: a single int64
// pointing at the most recent CHECKPOINT record, or -1 if none exists yet.
const headerSize = 8

// noCheckpoint is the header value meaning "no checkpoint has ever been
// written".
var noCheckpoint int64 = -1

// defaultBufferSize is Config's BufferSize default: the largest single
// encoded record Writer will append before rejecting it outright.
const defaultBufferSize = 1 << 20

// Config configures a Writer: the log file's path, and the largest single
// record an append is allowed to produce. This Writer never buffers writes
// in memory — every append still goes straight to the file via WriteAt —
// so BufferSize is a sanity ceiling on a single UPDATE's before/after page
// images, not a real I/O buffer.
type Config struct {
	Path       string
	BufferSize int
}

// NewConfig validates path and applies BufferSize's default (1 MiB) if the
// caller left it unset.
func NewConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("log: Config.Path is required")
	}
	return Config{Path: path, BufferSize: defaultBufferSize}, nil
}

// Writer is the write-ahead log for one database file. It owns the log
// file's only *os.File handle, the current append offset, and the live-
// transaction table (tid -> offset of that transaction's BEGIN record).
// All public methods except Print are safe for concurrent use; callers that also hold a
// PageStore's pool mutex must acquire it BEFORE calling into Writer (see
// store.go's PoolMutex doc) to keep lock order consistent.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string

	// currentOffset is the file offset the next record will be written at.
	// It also doubles as "file length so far" since the log never writes
	// anywhere except its own tail (outside of checkpoint's header patch
	// and truncate's full rewrite).
	currentOffset int64

	// recoveryUndecided is true from Open until whatever content the file
	// already had on disk is either replayed by Recover or discarded by
	// the first append. An append before Recover means the caller has
	// chosen not to recover, so preAppend truncates the file to empty
	// first rather than silently appending after stale, unrecovered
	// content.
	recoveryUndecided bool

	// liveTx maps an in-progress transaction's id to the offset of its
	// BEGIN record. A tid leaves this map on COMMIT or ABORT; Recover
	// empties it.
	liveTx map[int64]int64

	store      PageStore
	bufferSize int
}

// Open opens or creates the log file at cfg.Path and prepares it for
// writes. If the file is empty, the header is written immediately so
// Recover can read it without requiring a prior write. Otherwise whatever
// content the file already has is left untouched until the caller either
// calls Recover (which replays it) or writes a record without recovering
// first (which discards it) — recoveryUndecided tracks which of those has
// happened yet, independent of the file's size at Open time.
func Open(cfg Config, store PageStore) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log: Config.Path is required")
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("log: open %s: %w", cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("log: stat %s: %w", cfg.Path, err)
	}
	w := &Writer{
		file:              f,
		path:              cfg.Path,
		currentOffset:     info.Size(),
		recoveryUndecided: true,
		liveTx:            make(map[int64]int64),
		store:             store,
		bufferSize:        bufferSize,
	}
	if info.Size() == 0 {
		var hdr [headerSize]byte
		binary.BigEndian.PutUint64(hdr[:], uint64(noCheckpoint))
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: write header: %v", ErrIOFailure, err)
		}
		w.currentOffset = headerSize
	}
	return w, nil
}

// Close flushes and releases the log file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("log: sync on close: %w", err)
	}
	return w.file.Close()
}

// Shutdown writes a checkpoint and then closes the log, the orderly-exit
// path as opposed to the crash path Recover deals with. The caller must
// already hold the PageStore's pool mutex, the same requirement Checkpoint
// itself carries.
func (w *Writer) Shutdown() error {
	if err := w.Checkpoint(); err != nil {
		return err
	}
	return w.Close()
}

// preAppend resolves recoveryUndecided before the first real write: if the
// caller never called Recover, whatever the file already held is discarded
// (truncated to empty) and a fresh header written, exactly as if the file
// had been empty at Open. Called with mu held.
func (w *Writer) preAppend() error {
	if !w.recoveryUndecided {
		return nil
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate unrecovered log: %v", ErrIOFailure, err)
	}
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(noCheckpoint))
	if _, err := w.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIOFailure, err)
	}
	w.currentOffset = headerSize
	w.liveTx = make(map[int64]int64)
	w.recoveryUndecided = false
	return nil
}

// append writes buf at the current tail and advances the offset. Called
// with mu held.
func (w *Writer) append(buf []byte) error {
	if len(buf) > w.bufferSize {
		return fmt.Errorf("%w: record is %d bytes, limit is %d", ErrRecordTooLarge, len(buf), w.bufferSize)
	}
	if err := w.preAppend(); err != nil {
		return err
	}
	if _, err := w.file.WriteAt(buf, w.currentOffset); err != nil {
		return fmt.Errorf("%w: append record: %v", ErrIOFailure, err)
	}
	w.currentOffset += int64(len(buf))
	return nil
}

// Begin records the start of transaction tid and seeds the live-transaction
// table. Returns ErrDuplicateBegin if tid already has a live BEGIN.
func (w *Writer) Begin(tid int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.liveTx[tid]; ok {
		return fmt.Errorf("%w: tid %d", ErrDuplicateBegin, tid)
	}
	if err := w.preAppend(); err != nil {
		return err
	}
	start := w.currentOffset
	if err := w.append(encodeBegin(tid, start)); err != nil {
		return err
	}
	w.liveTx[tid] = start
	logging.Debug("log: begin", "tid", tid, "offset", start)
	return nil
}

// Commit writes a COMMIT record for tid, forces the log, and removes tid
// from the live-transaction table. The caller is responsible for having
// already flushed tid's dirty pages before calling Commit, so that once
// Commit returns the transaction's effects are durable on both the data
// files and the log.
func (w *Writer) Commit(tid int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.liveTx[tid]; !ok {
		return fmt.Errorf("%w: tid %d", ErrUnknownTID, tid)
	}
	start := w.currentOffset
	if err := w.append(encodeCommit(tid, start)); err != nil {
		return err
	}
	if err := w.forceLocked(); err != nil {
		return err
	}
	delete(w.liveTx, tid)
	logging.Debug("log: commit", "tid", tid)
	return nil
}

// Abort rolls tid back to its pre-transaction state (writing before-images
// directly through the PageStore, not via a compensation log record), then
// writes an ABORT record, forces the log, and removes tid from the
// live-transaction table.
//
// The caller must already hold the PageStore's pool mutex (see store.go's
// PoolMutex doc): Abort only ever acquires its own w.mu, so that the pool
// mutex is always taken first, by whoever orchestrates the abort.
func (w *Writer) Abort(tid int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.liveTx[tid]; !ok {
		return fmt.Errorf("%w: tid %d", ErrUnknownTID, tid)
	}
	if err := w.rollbackLocked(tid); err != nil {
		return err
	}
	start := w.currentOffset
	if err := w.append(encodeAbort(tid, start)); err != nil {
		return err
	}
	if err := w.forceLocked(); err != nil {
		return err
	}
	delete(w.liveTx, tid)
	logging.Debug("log: abort", "tid", tid)
	return nil
}

// Update writes an UPDATE record carrying before's and after's full page
// images. It does not force the log; the record only needs to reach disk
// before the corresponding dirty page does. Checkpoint forces the log before
// it flushes dirty pages, and a caller that writes a page back itself calls
// Force first (as pagestore's BufferPool.Commit does).
func (w *Writer) Update(tid int64, before, after page.Page) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.liveTx[tid]; !ok {
		return fmt.Errorf("%w: tid %d", ErrUnknownTID, tid)
	}
	start := w.currentOffset
	beforeImg := toPageImage(before)
	afterImg := toPageImage(after)
	if err := w.append(encodeUpdate(tid, beforeImg, afterImg, start)); err != nil {
		return err
	}
	return nil
}

// Force syncs the log file to stable storage.
func (w *Writer) Force() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.forceLocked()
}

func (w *Writer) forceLocked() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: force: %v", ErrIOFailure, err)
	}
	return nil
}

// readerAt exposes the log file for the record-decoding helpers in
// record.go and the scan helpers in rollback.go/recovery.go.
func (w *Writer) readerAt() io.ReaderAt { return w.file }
