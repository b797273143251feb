package log

import (
	"fmt"
	"io"
)

// Print writes a human-readable dump of every record in the log to w, one
// line per record. It takes no lock, so it is safe only while no other
// goroutine is writing to the log; it is a debugging aid, not a concurrent
// introspection tool.
func (w *Writer) Print(out io.Writer) error {
	header, err := w.readHeaderLocked()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "checkpoint pointer: %d\n", header)

	off := int64(headerSize)
	for off < w.currentOffset {
		rec, next, err := readRecord(w.readerAt(), off)
		if err != nil {
			return fmt.Errorf("print: %w", err)
		}
		switch rec.kind {
		case UpdateKind:
			fmt.Fprintf(out, "%d: %s tid=%d before=%s after=%s\n",
				off, rec.kind, rec.tid, describeImage(rec.before), describeImage(rec.after))
		case CheckpointKind:
			fmt.Fprintf(out, "%d: %s live=%v\n", off, rec.kind, rec.checkpoint)
		default:
			fmt.Fprintf(out, "%d: %s tid=%d\n", off, rec.kind, rec.tid)
		}
		off = next
	}
	return nil
}

func describeImage(img *pageImage) string {
	return fmt.Sprintf("%s/%s%v(%d bytes)", img.pageTag, img.idTag, img.idInts, len(img.data))
}
