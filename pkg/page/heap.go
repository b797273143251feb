package page

// HeapPage is a fixed-size page of raw bytes. It carries no slot/tuple
// structure of its own — the WAL only needs a byte blob it can snapshot and
// restore; any higher-level record layout lives above this package.
type HeapPage struct {
	id     *HeapPageID
	data   []byte
	before *HeapPage
}

const HeapPageTag = "heap.Page"

// NewHeapPage wraps data as the page identified by id. data is copied so the
// caller's buffer can be reused.
func NewHeapPage(id *HeapPageID, data []byte) *HeapPage {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &HeapPage{id: id, data: buf}
}

func (h *HeapPage) ID() ID          { return h.id }
func (h *HeapPage) TypeTag() string { return HeapPageTag }
func (h *HeapPage) Data() []byte    { return h.data }

func (h *HeapPage) BeforeImage() Page {
	if h.before == nil {
		return nil
	}
	return h.before
}

func (h *HeapPage) SetBeforeImage() {
	snapshot := make([]byte, len(h.data))
	copy(snapshot, h.data)
	h.before = &HeapPage{id: h.id, data: snapshot}
}

// HeapPageFromBytes reconstructs a HeapPage from an id and raw bytes.
// Registered under HeapPageTag.
func HeapPageFromBytes(id ID, data []byte) (Page, error) {
	hid, ok := id.(*HeapPageID)
	if !ok {
		return nil, errWrongIDType(HeapPageTag, id)
	}
	return NewHeapPage(hid, data), nil
}
