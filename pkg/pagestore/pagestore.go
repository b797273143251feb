// Package pagestore implements the log.PageStore capability against a
// directory of flat, page-numbered table files, plus a BufferPool that
// composes it with a log.Writer into the commit/abort lifecycle a
// transaction manager actually drives.
package pagestore

import (
	"fmt"
	"sync"

	"dbwal/pkg/page"
)

// Config configures a PageStore: the directory its table files live in, and
// the fixed page size every table file in that directory uses.
type Config struct {
	Dir      string
	PageSize int
}

// NewConfig validates dir and applies PageSize's default of 4096 if the
// caller left it unset.
func NewConfig(dir string) (Config, error) {
	if dir == "" {
		return Config{}, fmt.Errorf("pagestore: Config.Dir is required")
	}
	return Config{Dir: dir, PageSize: PageSize}, nil
}

// PageStore caches pages from a set of table files and implements the
// log.PageStore capability: LoadPage/WritePage/DiscardCached/FlushAllDirty
// for the log, plus ReconstructPageID/ReconstructPage via a page.Registry,
// plus the pool mutex every caller that touches both the store and the log
// must take first.
type PageStore struct {
	poolMu sync.Mutex

	registry *page.Registry
	dir      string
	pageSize int

	tables map[int]*tableFile
	cache  map[string]page.Page
	dirty  map[string]bool
}

// New returns a PageStore configured by cfg, using registry to reconstruct
// pages and ids read back from the log. Table files are created lazily the
// first time a page from that table is touched.
func New(cfg Config, registry *page.Registry) (*PageStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("pagestore: Config.Dir is required")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = PageSize
	}
	return &PageStore{
		registry: registry,
		dir:      cfg.Dir,
		pageSize: pageSize,
		tables:   make(map[int]*tableFile),
		cache:    make(map[string]page.Page),
		dirty:    make(map[string]bool),
	}, nil
}

func (s *PageStore) PoolMutex() *sync.Mutex { return &s.poolMu }

func (s *PageStore) ReconstructPageID(tag string, ints []int32) (page.ID, error) {
	return s.registry.ReconstructID(tag, ints)
}

func (s *PageStore) ReconstructPage(tag string, id page.ID, data []byte) (page.Page, error) {
	return s.registry.ReconstructPage(tag, id, data)
}

func idKey(id page.ID) string {
	return fmt.Sprintf("%s:%v", id.TypeTag(), id.Serialize())
}

func (s *PageStore) tableFor(id page.ID) (*tableFile, error) {
	heapID, ok := id.(*page.HeapPageID)
	if !ok {
		return nil, fmt.Errorf("pagestore: unsupported page id type %T", id)
	}
	tf, ok := s.tables[heapID.TableID()]
	if ok {
		return tf, nil
	}
	path := fmt.Sprintf("%s/table-%d.dat", s.dir, heapID.TableID())
	tf, err := openTableFile(heapID.TableID(), path, s.pageSize)
	if err != nil {
		return nil, err
	}
	s.tables[heapID.TableID()] = tf
	return tf, nil
}

// LoadPage returns id's cached page if present, otherwise reads it from its
// table file and caches it clean.
func (s *PageStore) LoadPage(id page.ID) (page.Page, error) {
	key := idKey(id)
	if pg, ok := s.cache[key]; ok {
		return pg, nil
	}
	tf, err := s.tableFor(id)
	if err != nil {
		return nil, err
	}
	heapID := id.(*page.HeapPageID)
	pg, err := tf.readPage(heapID.PageNo())
	if err != nil {
		return nil, err
	}
	s.cache[key] = pg
	return pg, nil
}

// WritePage durably writes data's current contents through to its table
// file, bypassing the dirty-page cache entirely, and refreshes the cached
// copy to match. Callers are the log's rollback and recovery paths and
// BufferPool.Commit.
func (s *PageStore) WritePage(data page.Page) error {
	tf, err := s.tableFor(data.ID())
	if err != nil {
		return err
	}
	if err := tf.writePage(data); err != nil {
		return err
	}
	if err := tf.sync(); err != nil {
		return fmt.Errorf("pagestore: sync after write: %w", err)
	}
	key := idKey(data.ID())
	s.cache[key] = data
	delete(s.dirty, key)
	return nil
}

// DiscardCached drops id's cached copy, if any.
func (s *PageStore) DiscardCached(id page.ID) {
	key := idKey(id)
	delete(s.cache, key)
	delete(s.dirty, key)
}

// stageDirty caches pg as the current contents of its slot and marks it
// dirty, without writing anything to the table file yet. Used by
// BufferPool.Put; FlushAllDirty or a later WritePage is what makes it
// durable.
func (s *PageStore) stageDirty(pg page.Page) {
	key := idKey(pg.ID())
	s.cache[key] = pg
	s.dirty[key] = true
}

// FlushAllDirty writes every dirty cached page through to its table file
// and syncs every table file touched. Used before a checkpoint so its
// promise ("everything before this point is durable") holds.
func (s *PageStore) FlushAllDirty() error {
	touched := make(map[int]*tableFile)
	for key := range s.dirty {
		pg := s.cache[key]
		tf, err := s.tableFor(pg.ID())
		if err != nil {
			return err
		}
		if err := tf.writePage(pg); err != nil {
			return err
		}
		touched[tf.tableID] = tf
		delete(s.dirty, key)
	}
	for _, tf := range touched {
		if err := tf.sync(); err != nil {
			return fmt.Errorf("pagestore: sync during flush: %w", err)
		}
	}
	return nil
}

// Close releases every open table file. It neither writes dirty cached
// pages nor syncs the files first.
func (s *PageStore) Close() error {
	for _, tf := range s.tables {
		if err := tf.close(); err != nil {
			return err
		}
	}
	return nil
}
