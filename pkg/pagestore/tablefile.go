package pagestore

import (
	"fmt"
	"io"
	"os"

	"dbwal/pkg/page"
)

// PageSize is the default page size (Config.PageSize) for table files. The
// log never cares about this value directly; it only ever copies whatever
// byte length a page reports.
const PageSize = 4096

// tableFile is a flat file of fixed-size pages for one table, addressed by
// page number. It performs no caching and no buffering of its own — that
// lives one layer up, in PageStore.
type tableFile struct {
	tableID  int
	path     string
	file     *os.File
	pageSize int
}

func openTableFile(tableID int, path string, pageSize int) (*tableFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open table file %s: %w", path, err)
	}
	return &tableFile{tableID: tableID, path: path, file: f, pageSize: pageSize}, nil
}

func (t *tableFile) readPage(pageNo int) (*page.HeapPage, error) {
	buf := make([]byte, t.pageSize)
	off := int64(pageNo) * int64(t.pageSize)
	n, err := t.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("pagestore: read page %d of table %d: %w", pageNo, t.tableID, err)
	}
	if n < t.pageSize {
		// Never-written page reads as zeros, matching a freshly
		// extended heap file.
		for i := n; i < t.pageSize; i++ {
			buf[i] = 0
		}
	}
	return page.NewHeapPage(page.NewHeapPageID(t.tableID, pageNo), buf), nil
}

func (t *tableFile) writePage(pg page.Page) error {
	id, ok := pg.ID().(*page.HeapPageID)
	if !ok {
		return fmt.Errorf("pagestore: page id %v is not a HeapPageID", pg.ID())
	}
	data := pg.Data()
	if len(data) != t.pageSize {
		return fmt.Errorf("pagestore: page %v has %d bytes, want %d", id, len(data), t.pageSize)
	}
	off := int64(id.PageNo()) * int64(t.pageSize)
	if _, err := t.file.WriteAt(data, off); err != nil {
		return fmt.Errorf("pagestore: write page %v: %w", id, err)
	}
	return nil
}

func (t *tableFile) sync() error {
	return t.file.Sync()
}

func (t *tableFile) close() error {
	return t.file.Close()
}
