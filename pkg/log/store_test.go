package log

import (
	"fmt"
	"sync"

	"dbwal/pkg/page"
)

// memStore is a trivial in-memory PageStore used by this package's own
// tests, independent of the real pkg/pagestore implementation so log's
// tests never depend on it.
type memStore struct {
	mu       sync.Mutex
	pages    map[string]page.Page
	dirty    map[string]bool
	writes   []string // page keys WritePage was called with, in order
	registry *page.Registry
}

func newMemStore() *memStore {
	return &memStore{
		pages:    make(map[string]page.Page),
		dirty:    make(map[string]bool),
		registry: page.NewDefaultRegistry(),
	}
}

func (s *memStore) key(id page.ID) string {
	return fmt.Sprintf("%s:%v", id.TypeTag(), id.Serialize())
}

func (s *memStore) LoadPage(id page.ID) (page.Page, error) {
	if pg, ok := s.pages[s.key(id)]; ok {
		return pg, nil
	}
	return page.NewHeapPage(id.(*page.HeapPageID), make([]byte, 16)), nil
}

func (s *memStore) WritePage(pg page.Page) error {
	k := s.key(pg.ID())
	s.pages[k] = pg
	delete(s.dirty, k)
	s.writes = append(s.writes, k)
	return nil
}

func (s *memStore) DiscardCached(id page.ID) {
	delete(s.pages, s.key(id))
}

func (s *memStore) FlushAllDirty() error {
	for k := range s.dirty {
		delete(s.dirty, k)
	}
	return nil
}

func (s *memStore) ReconstructPageID(tag string, ints []int32) (page.ID, error) {
	return s.registry.ReconstructID(tag, ints)
}

func (s *memStore) ReconstructPage(tag string, id page.ID, data []byte) (page.Page, error) {
	return s.registry.ReconstructPage(tag, id, data)
}

func (s *memStore) PoolMutex() *sync.Mutex { return &s.mu }

func mockPage(tableID, pageNo int, fill byte) page.Page {
	data := make([]byte, 16)
	for i := range data {
		data[i] = fill
	}
	return page.NewHeapPage(page.NewHeapPageID(tableID, pageNo), data)
}
