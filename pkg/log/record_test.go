package log

import (
	"bytes"
	"errors"
	"testing"
)

func TestSimpleRecordRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
	}{
		{"begin", BeginKind},
		{"commit", CommitKind},
		{"abort", AbortKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := encodeSimple(tc.kind, 42, 8)
			rec, next, err := readRecord(padTo(buf, 100), 0)
			if err != nil {
				t.Fatalf("readRecord: %v", err)
			}
			if rec.kind != tc.kind || rec.tid != 42 || rec.start != 8 {
				t.Fatalf("got %+v", rec)
			}
			if next != int64(len(buf)) {
				t.Fatalf("next = %d, want %d", next, len(buf))
			}
		})
	}
}

func TestUpdateRecordRoundTrip(t *testing.T) {
	before := &pageImage{pageTag: "heap.Page", idTag: "heap.PageID", idInts: []int32{1, 2}, data: []byte("before")}
	after := &pageImage{pageTag: "heap.Page", idTag: "heap.PageID", idInts: []int32{1, 2}, data: []byte("after!")}
	buf := encodeUpdate(9, before, after, 8)

	rec, next, err := readRecord(padTo(buf, 200), 0)
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if rec.kind != UpdateKind || rec.tid != 9 || rec.start != 8 {
		t.Fatalf("got %+v", rec)
	}
	if string(rec.before.data) != "before" || string(rec.after.data) != "after!" {
		t.Fatalf("before/after mismatch: %+v", rec)
	}
	if next != int64(len(buf)) {
		t.Fatalf("next = %d, want %d", next, len(buf))
	}
}

func TestCheckpointRecordRoundTrip(t *testing.T) {
	entries := []checkpointEntry{{tid: 1, firstOffset: 8}, {tid: 2, firstOffset: 40}}
	buf := encodeCheckpoint(entries, 100)

	rec, _, err := readRecord(padTo(buf, 200), 0)
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if rec.kind != CheckpointKind || rec.tid != checkpointTID || rec.start != 100 {
		t.Fatalf("got %+v", rec)
	}
	if len(rec.checkpoint) != 2 || rec.checkpoint[0] != entries[0] || rec.checkpoint[1] != entries[1] {
		t.Fatalf("checkpoint entries = %+v, want %+v", rec.checkpoint, entries)
	}
}

func TestReadRecordTruncatedIsCorrupt(t *testing.T) {
	before := &pageImage{pageTag: "heap.Page", idTag: "heap.PageID", idInts: []int32{1, 2}, data: []byte("before")}
	after := &pageImage{pageTag: "heap.Page", idTag: "heap.PageID", idInts: []int32{1, 2}, data: []byte("after!")}
	buf := encodeUpdate(9, before, after, 8)

	// Truncate mid-record: should fail as corrupt, not as a clean EOF.
	_, _, err := readRecord(bytes.NewReader(buf[:len(buf)-4]), 0)
	if !errors.Is(err, ErrCorruptLog) {
		t.Fatalf("err = %v, want ErrCorruptLog for a truncated record", err)
	}
}

// padTo right-pads buf with zeros so readRecord's ReadAt calls that probe
// past a short slice behave like reading from a real (longer) file rather
// than hitting io.EOF on the exact boundary under test.
func padTo(buf []byte, n int) *bytes.Reader {
	if len(buf) >= n {
		return bytes.NewReader(buf)
	}
	padded := make([]byte, n)
	copy(padded, buf)
	return bytes.NewReader(padded)
}
