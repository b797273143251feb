package log

import (
	"sync"

	"dbwal/pkg/page"
)

// PageStore is the capability the write-ahead log consumes from whatever
// holds the real table data. It never sees a concrete page or table type —
// only the opaque page.ID/page.Page interfaces and the type-tag registry
// needed to round-trip them through a log record.
//
// Implementations must guarantee WritePage is durable and synchronous: once
// it returns, the bytes are on stable storage. The log relies on this during
// rollback and recovery, where it writes a before-image directly rather than
// going through any write-back cache.
type PageStore interface {
	// LoadPage returns the current on-disk contents of id, for taking a
	// before-image prior to an update.
	LoadPage(id page.ID) (page.Page, error)

	// WritePage durably overwrites the page's slot with data's current
	// contents, bypassing any dirty-page cache.
	WritePage(data page.Page) error

	// DiscardCached drops any cached copy of id so a subsequent LoadPage
	// re-reads from storage. Used after a rollback writes a before-image
	// directly, to invalidate a buffer pool that might otherwise still
	// serve the stale after-image.
	DiscardCached(id page.ID)

	// FlushAllDirty forces every dirty cached page to storage. Used before
	// a checkpoint, so the checkpoint's promise ("everything before this
	// point is on disk") holds.
	FlushAllDirty() error

	// ReconstructPageID rebuilds a page id from the type tag and integer
	// vector a log record stored for it.
	ReconstructPageID(tag string, ints []int32) (page.ID, error)

	// ReconstructPage rebuilds a page from the type tag, id, and raw bytes
	// a log record stored for it.
	ReconstructPage(tag string, id page.ID, data []byte) (page.Page, error)

	// PoolMutex returns the mutex guarding the page store's own state. The
	// log acquires it before its own lock wherever an operation (recovery,
	// rollback) touches both, so lock order is always pool before log.
	// Taking the log's lock first would deadlock against a PageStore whose
	// own methods acquire the pool mutex while already holding it.
	PoolMutex() *sync.Mutex
}

func toPageImage(p page.Page) *pageImage {
	id := p.ID()
	return &pageImage{
		pageTag: p.TypeTag(),
		idTag:   id.TypeTag(),
		idInts:  id.Serialize(),
		data:    p.Data(),
	}
}

func fromPageImage(store PageStore, img *pageImage) (page.Page, error) {
	id, err := store.ReconstructPageID(img.idTag, img.idInts)
	if err != nil {
		return nil, err
	}
	return store.ReconstructPage(img.pageTag, id, img.data)
}
