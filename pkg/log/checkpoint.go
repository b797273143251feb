package log

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"dbwal/pkg/logging"
)

// Checkpoint forces the log, flushes every dirty page, writes a CHECKPOINT
// record listing every currently live transaction and the offset of its
// BEGIN record, atomically repoints the log's header at that record, and
// then truncates everything the checkpoint made obsolete. After Checkpoint
// returns, the log holds nothing earlier than the new checkpoint or the
// BEGIN record of the oldest transaction it lists as live.
//
// The caller must already hold the PageStore's pool mutex, acquired before
// w's own lock, consistent with every other method here that touches both.
func (w *Writer) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.forceLocked(); err != nil {
		return err
	}
	if err := w.store.FlushAllDirty(); err != nil {
		return fmt.Errorf("checkpoint: flush dirty pages: %w", err)
	}

	if err := w.preAppend(); err != nil {
		return err
	}
	start := w.currentOffset
	entries := make([]checkpointEntry, 0, len(w.liveTx))
	minRecord := start
	for tid, beginOff := range w.liveTx {
		entries = append(entries, checkpointEntry{tid: tid, firstOffset: beginOff})
		if beginOff < minRecord {
			minRecord = beginOff
		}
	}

	if err := w.append(encodeCheckpoint(entries, start)); err != nil {
		return err
	}
	if err := w.patchHeader(start); err != nil {
		return err
	}
	if err := w.forceLocked(); err != nil {
		return err
	}

	logging.Debug("log: checkpoint", "offset", start, "live", len(entries))
	return w.truncateLocked(minRecord)
}

// patchHeader atomically repoints the header at offset 0 to checkpointOff.
func (w *Writer) patchHeader(checkpointOff int64) error {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(checkpointOff))
	if _, err := w.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: patch header: %v", ErrIOFailure, err)
	}
	return nil
}

// truncateLocked rewrites the log file, dropping every byte before
// minRecord and shifting every offset embedded in the retained records (the
// trailing start field, and CHECKPOINT's firstOffset entries, plus the
// header pointer) by delta = minRecord - headerSize, so the retained
// portion is byte-identical to what it would have been had the log always
// started at minRecord. Called with both mutexes held.
func (w *Writer) truncateLocked(minRecord int64) error {
	delta := minRecord - headerSize
	if delta <= 0 {
		return nil
	}

	tmpPath := fmt.Sprintf("%s.logtmp%d", w.path, time.Now().UnixNano())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create truncate scratch file: %v", ErrIOFailure, err)
	}
	defer os.Remove(tmpPath)

	var hdr [headerSize]byte
	headerVal, err := w.readHeaderLocked()
	if err != nil {
		tmp.Close()
		return err
	}
	newHeaderVal := noCheckpoint
	if headerVal != noCheckpoint {
		newHeaderVal = headerVal - delta
	}
	binary.BigEndian.PutUint64(hdr[:], uint64(newHeaderVal))
	if _, err := tmp.WriteAt(hdr[:], 0); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write scratch header: %v", ErrIOFailure, err)
	}

	writeOff := int64(headerSize)
	off := minRecord
	newLiveTx := make(map[int64]int64, len(w.liveTx))
	for off < w.currentOffset {
		rec, next, err := readRecord(w.readerAt(), off)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("truncate: %w", err)
		}
		shiftedStart := off - delta
		var buf []byte
		switch rec.kind {
		case BeginKind, CommitKind, AbortKind:
			buf = encodeSimple(rec.kind, rec.tid, shiftedStart)
		case UpdateKind:
			buf = encodeUpdate(rec.tid, rec.before, rec.after, shiftedStart)
		case CheckpointKind:
			shifted := make([]checkpointEntry, len(rec.checkpoint))
			for i, e := range rec.checkpoint {
				shifted[i] = checkpointEntry{tid: e.tid, firstOffset: e.firstOffset - delta}
			}
			buf = encodeCheckpoint(shifted, shiftedStart)
		}
		if rec.kind == BeginKind {
			newLiveTx[rec.tid] = shiftedStart
		}
		if _, err := tmp.WriteAt(buf, writeOff); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: write scratch record: %v", ErrIOFailure, err)
		}
		writeOff += int64(len(buf))
		off = next
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync scratch file: %v", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close scratch file: %v", ErrIOFailure, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close log file before rename: %v", ErrIOFailure, err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("%w: rename scratch file over log: %v", ErrIOFailure, err)
	}

	f, err := os.OpenFile(w.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("%w: reopen log after truncate: %v", ErrIOFailure, err)
	}
	w.file = f
	w.currentOffset = writeOff
	w.liveTx = newLiveTx
	return nil
}

// readHeaderLocked reads the checkpoint pointer from offset 0.
func (w *Writer) readHeaderLocked() (int64, error) {
	var hdr [headerSize]byte
	if _, err := w.file.ReadAt(hdr[:], 0); err != nil {
		return 0, fmt.Errorf("%w: read header: %v", ErrIOFailure, err)
	}
	return int64(binary.BigEndian.Uint64(hdr[:])), nil
}
