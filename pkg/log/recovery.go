package log

import (
	"fmt"

	"dbwal/pkg/logging"
)

// Recover replays the log after a crash. It runs in four passes rather than
// strict ARIES' three:
//
//	Phase 0 (Analysis)     seed the loser set from the most recent checkpoint,
//	                        or start empty if there isn't one.
//	Phase 1 (Redo-all)      scan forward from just after the checkpoint (or
//	                        the start of the log) reapplying every UPDATE's
//	                        after-image unconditionally, and sorting each tid
//	                        seen into winners (committed) or losers (neither
//	                        committed nor aborted by the time the log ends).
//	Phase 2 (Undo-losers)   undo every loser's updates in reverse order,
//	                        writing before-images directly.
//	Phase 3 (Redo-winners)  scan forward a third time, from offset 8, and
//	                        reapply every winner's after-images once more.
//
// Phase 3 exists because Phase 2's undo writes a before-image unconditionally,
// with no regard for what a later winner update wrote to the same page — an
// out-of-order undo can clobber a winner's effect. Redoing winners afterward
// restores it. Strict ARIES avoids this by tracking per-page LSNs and
// skipping stale writes; this log has none, so it pays for a second redo
// pass instead.
//
// Phase 3 scans from offset 8, not from redoStart: a winner can be listed
// live in the same checkpoint as a loser that shares one of its pages, with
// its own UPDATE falling before the checkpoint. Phase 2's undo, scanning
// back to undoStart, can clobber that pre-checkpoint page with the loser's
// before-image; only a redo pass that also starts before the checkpoint
// catches it.
//
// Recover must be called before any new transaction begins, on a log file
// just opened for the first time. On return the live-transaction table is
// always empty.
//
// The caller must already hold the PageStore's pool mutex, acquired before
// w's own lock, consistent with every other method here that touches both.
func (w *Writer) Recover() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recoveryUndecided = false

	losers := make(map[int64]bool)
	winners := make(map[int64]bool)

	checkpointOff, err := w.readHeaderLocked()
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	redoStart := int64(headerSize)
	undoStart := int64(headerSize)

	if checkpointOff != noCheckpoint {
		rec, next, err := readRecord(w.readerAt(), checkpointOff)
		if err != nil {
			return fmt.Errorf("recover: reading checkpoint: %w", err)
		}
		if rec.kind != CheckpointKind {
			return fmt.Errorf("%w: header points at non-checkpoint record", ErrCorruptLog)
		}
		redoStart = next
		undoStart = checkpointOff
		for _, e := range rec.checkpoint {
			losers[e.tid] = true
			if e.firstOffset < undoStart {
				undoStart = e.firstOffset
			}
		}
	}

	logging.Info("log: recovery starting", "checkpoint", checkpointOff, "redoStart", redoStart)

	// Phase 1: redo-all, and classify every tid into winners or losers.
	off := redoStart
	for off < w.currentOffset {
		rec, next, err := readRecord(w.readerAt(), off)
		if err != nil {
			return fmt.Errorf("recover: phase 1: %w", err)
		}
		switch rec.kind {
		case BeginKind:
			losers[rec.tid] = true
		case CommitKind:
			delete(losers, rec.tid)
			winners[rec.tid] = true
		case AbortKind:
			// tid's rollback already ran and durably wrote its
			// before-images before this ABORT was appended (see
			// Writer.Abort): nothing left to undo for it.
			delete(losers, rec.tid)
		case UpdateKind:
			if err := w.redoOne(rec.after); err != nil {
				return fmt.Errorf("recover: phase 1 redo: %w", err)
			}
		}
		off = next
	}

	logging.Info("log: recovery phase 1 done", "losers", len(losers), "winners", len(winners))

	// Phase 2: undo losers, in reverse chronological order.
	if err := w.undoLosers(undoStart, w.currentOffset, losers); err != nil {
		return fmt.Errorf("recover: phase 2: %w", err)
	}

	// Phase 3: redo winners once more, to repair any page a Phase 2 undo
	// clobbered out of order. Must scan from offset 8, not redoStart: a
	// winner's UPDATE can fall before the checkpoint too.
	off = int64(headerSize)
	for off < w.currentOffset {
		rec, next, err := readRecord(w.readerAt(), off)
		if err != nil {
			return fmt.Errorf("recover: phase 3: %w", err)
		}
		if rec.kind == UpdateKind && winners[rec.tid] {
			if err := w.redoOne(rec.after); err != nil {
				return fmt.Errorf("recover: phase 3 redo: %w", err)
			}
		}
		off = next
	}

	w.liveTx = make(map[int64]int64)
	logging.Info("log: recovery complete")
	return nil
}

func (w *Writer) redoOne(after *pageImage) error {
	pg, err := fromPageImage(w.store, after)
	if err != nil {
		return err
	}
	w.store.DiscardCached(pg.ID())
	return w.store.WritePage(pg)
}
