package page

import (
	"fmt"
	"sync"
)

// Registry maps the stable string type tags written into a log's page_image
// records to closures that can rebuild a page id or a page from the integers
// and bytes the log persisted for it. The log never imports a concrete page
// type, it only ever round-trips a tag string plus the bytes the registry's
// own closures produced.
type Registry struct {
	mu          sync.RWMutex
	idBuilders  map[string]func([]int32) (ID, error)
	pageBuilders map[string]func(ID, []byte) (Page, error)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		idBuilders:   make(map[string]func([]int32) (ID, error)),
		pageBuilders: make(map[string]func(ID, []byte) (Page, error)),
	}
}

// RegisterIDType registers the reconstructor for page ids carrying tag.
func (r *Registry) RegisterIDType(tag string, build func([]int32) (ID, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idBuilders[tag] = build
}

// RegisterPageType registers the reconstructor for pages carrying tag.
func (r *Registry) RegisterPageType(tag string, build func(ID, []byte) (Page, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageBuilders[tag] = build
}

// ReconstructID rebuilds a page id from its type tag and serialized ints.
func (r *Registry) ReconstructID(tag string, ints []int32) (ID, error) {
	r.mu.RLock()
	build, ok := r.idBuilders[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("page: no id type registered for tag %q", tag)
	}
	return build(ints)
}

// ReconstructPage rebuilds a page from its type tag, id, and raw bytes.
func (r *Registry) ReconstructPage(tag string, id ID, data []byte) (Page, error) {
	r.mu.RLock()
	build, ok := r.pageBuilders[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("page: no page type registered for tag %q", tag)
	}
	return build(id, data)
}

// NewDefaultRegistry returns a registry with HeapPageID/HeapPage already
// registered; callers with their own page types register alongside these.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterIDType(HeapPageIDTag, HeapPageIDFromInts)
	r.RegisterPageType(HeapPageTag, HeapPageFromBytes)
	return r
}

func errWrongIDType(pageTag string, id ID) error {
	return fmt.Errorf("page: id %v is not valid for page type %q", id, pageTag)
}
