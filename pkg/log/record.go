package log

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Kind tags a log record. The numeric values are part of the on-disk
// format and are not renumbered for Go idiom's sake, which is why ABORT=1
// precedes BEGIN=4 below.
type Kind int32

const (
	AbortKind      Kind = 1
	CommitKind     Kind = 2
	UpdateKind     Kind = 3
	BeginKind      Kind = 4
	CheckpointKind Kind = 5
)

func (k Kind) String() string {
	switch k {
	case AbortKind:
		return "ABORT"
	case CommitKind:
		return "COMMIT"
	case UpdateKind:
		return "UPDATE"
	case BeginKind:
		return "BEGIN"
	case CheckpointKind:
		return "CHECKPOINT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(k))
	}
}

// checkpointTID is the placeholder transaction id a CHECKPOINT record
// carries in the field position BEGIN/COMMIT/ABORT/UPDATE use for a real TID.
const checkpointTID int64 = -1

// checkpointEntry is one (tid, first log record offset) pair listed in a
// CHECKPOINT record.
type checkpointEntry struct {
	tid         int64
	firstOffset int64
}

// pageImage is the serialized form of a before- or after-image: the type
// tags needed to reconstruct the page and its id, the id's integer vector,
// and the page's raw bytes.
type pageImage struct {
	pageTag string
	idTag   string
	idInts  []int32
	data    []byte
}

// record is a single decoded log entry. Only the fields relevant to Kind are
// populated; callers branch on Kind the same way the byte layout does.
type record struct {
	kind  Kind
	tid   int64
	start int64 // this record's own starting offset

	before, after *pageImage        // UPDATE only
	checkpoint    []checkpointEntry // CHECKPOINT only
}

// --- encoding -----------------------------------------------------------

func encodeBegin(tid, start int64) []byte {
	return encodeSimple(BeginKind, tid, start)
}

func encodeCommit(tid, start int64) []byte {
	return encodeSimple(CommitKind, tid, start)
}

func encodeAbort(tid, start int64) []byte {
	return encodeSimple(AbortKind, tid, start)
}

func encodeSimple(kind Kind, tid, start int64) []byte {
	buf := make([]byte, 4+8+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(kind))
	binary.BigEndian.PutUint64(buf[4:12], uint64(tid))
	binary.BigEndian.PutUint64(buf[12:20], uint64(start))
	return buf
}

func encodeUpdate(tid int64, before, after *pageImage, start int64) []byte {
	var buf bytes.Buffer
	writeInt32(&buf, int32(UpdateKind))
	writeInt64(&buf, tid)
	writePageImage(&buf, before)
	writePageImage(&buf, after)
	writeInt64(&buf, start)
	return buf.Bytes()
}

func encodeCheckpoint(entries []checkpointEntry, start int64) []byte {
	var buf bytes.Buffer
	writeInt32(&buf, int32(CheckpointKind))
	writeInt64(&buf, checkpointTID)
	writeInt32(&buf, int32(len(entries)))
	for _, e := range entries {
		writeInt64(&buf, e.tid)
		writeInt64(&buf, e.firstOffset)
	}
	writeInt64(&buf, start)
	return buf.Bytes()
}

func writePageImage(buf *bytes.Buffer, img *pageImage) {
	writeUTF(buf, img.pageTag)
	writeUTF(buf, img.idTag)
	writeInt32(buf, int32(len(img.idInts)))
	for _, v := range img.idInts {
		writeInt32(buf, v)
	}
	writeInt32(buf, int32(len(img.data)))
	buf.Write(img.data)
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeUTF(buf *bytes.Buffer, s string) {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(s)))
	buf.Write(lb[:])
	buf.WriteString(s)
}

// --- decoding ------------------------------------------------------------

// cursor decodes primitives from an io.ReaderAt starting at a given offset,
// advancing as it goes. It is the forward-read analogue of Java's
// RandomAccessFile cursor in LogFile.java.
type cursor struct {
	r   io.ReaderAt
	off int64
}

func newCursor(r io.ReaderAt, off int64) *cursor {
	return &cursor{r: r, off: off}
}

func (c *cursor) pos() int64 { return c.off }

func (c *cursor) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := c.r.ReadAt(buf, c.off)
	if err == io.EOF && read == n {
		err = nil
	}
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	c.off += int64(n)
	return buf, nil
}

func (c *cursor) readInt32() (int32, error) {
	b, err := c.readFull(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (c *cursor) readInt64() (int64, error) {
	b, err := c.readFull(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (c *cursor) readUTF() (string, error) {
	lb, err := c.readFull(2)
	if err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lb)
	if n == 0 {
		return "", nil
	}
	b, err := c.readFull(int(n))
	if err != nil {
		if err == io.EOF {
			return "", fmt.Errorf("%w: truncated utf string", ErrCorruptLog)
		}
		return "", err
	}
	return string(b), nil
}

func (c *cursor) readPageImage() (*pageImage, error) {
	pageTag, err := c.readUTF()
	if err != nil {
		return nil, eofToCorrupt(err)
	}
	idTag, err := c.readUTF()
	if err != nil {
		return nil, eofToCorrupt(err)
	}
	n, err := c.readInt32()
	if err != nil {
		return nil, eofToCorrupt(err)
	}
	if n < 0 || n > maxIDInts {
		return nil, fmt.Errorf("%w: implausible id vector length %d", ErrCorruptLog, n)
	}
	ints := make([]int32, n)
	for i := range ints {
		v, err := c.readInt32()
		if err != nil {
			return nil, eofToCorrupt(err)
		}
		ints[i] = v
	}
	dataLen, err := c.readInt32()
	if err != nil {
		return nil, eofToCorrupt(err)
	}
	if dataLen < 0 || dataLen > maxPageBytes {
		return nil, fmt.Errorf("%w: implausible page length %d", ErrCorruptLog, dataLen)
	}
	data, err := c.readFull(int(dataLen))
	if err != nil {
		return nil, eofToCorrupt(err)
	}
	return &pageImage{pageTag: pageTag, idTag: idTag, idInts: ints, data: data}, nil
}

// maxIDInts and maxPageBytes bound otherwise-unchecked length fields read
// from disk so a corrupted record fails fast instead of allocating
// unbounded memory.
const (
	maxIDInts    = 1 << 16
	maxPageBytes = 1 << 28
)

// eofToCorrupt turns a bare EOF encountered mid-record into CorruptLog: an
// EOF at a record boundary is normal end-of-log, but an EOF in the middle of
// a record (as here, where a preceding field already decoded successfully)
// means the file was truncated.
func eofToCorrupt(err error) error {
	if err == io.EOF {
		return fmt.Errorf("%w: unexpected EOF mid-record", ErrCorruptLog)
	}
	return err
}

// readRecord decodes one record starting at off, returning the record and
// the offset immediately after it. Returns io.EOF (unwrapped) if off is
// exactly at end of file — a clean place to stop a forward scan.
func readRecord(r io.ReaderAt, off int64) (*record, int64, error) {
	c := newCursor(r, off)

	kindRaw, err := c.readInt32()
	if err != nil {
		return nil, 0, err // clean EOF or IOFailure, not CorruptLog
	}
	kind := Kind(kindRaw)

	tid, err := c.readInt64()
	if err != nil {
		return nil, 0, eofToCorrupt(err)
	}

	rec := &record{kind: kind, tid: tid}

	switch kind {
	case BeginKind, CommitKind, AbortKind:
		start, err := c.readInt64()
		if err != nil {
			return nil, 0, eofToCorrupt(err)
		}
		rec.start = start

	case UpdateKind:
		before, err := c.readPageImage()
		if err != nil {
			return nil, 0, err
		}
		after, err := c.readPageImage()
		if err != nil {
			return nil, 0, err
		}
		start, err := c.readInt64()
		if err != nil {
			return nil, 0, eofToCorrupt(err)
		}
		rec.before, rec.after, rec.start = before, after, start

	case CheckpointKind:
		count, err := c.readInt32()
		if err != nil {
			return nil, 0, eofToCorrupt(err)
		}
		if count < 0 || int64(count) > maxIDInts {
			return nil, 0, fmt.Errorf("%w: implausible checkpoint count %d", ErrCorruptLog, count)
		}
		entries := make([]checkpointEntry, count)
		for i := range entries {
			etid, err := c.readInt64()
			if err != nil {
				return nil, 0, eofToCorrupt(err)
			}
			eoff, err := c.readInt64()
			if err != nil {
				return nil, 0, eofToCorrupt(err)
			}
			entries[i] = checkpointEntry{tid: etid, firstOffset: eoff}
		}
		start, err := c.readInt64()
		if err != nil {
			return nil, 0, eofToCorrupt(err)
		}
		rec.checkpoint, rec.start = entries, start

	default:
		return nil, 0, fmt.Errorf("%w: unknown record kind %d at offset %d", ErrCorruptLog, kindRaw, off)
	}

	return rec, c.pos(), nil
}
