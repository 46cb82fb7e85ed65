package vulkan

import (
	"sync"
	"sync/atomic"
)

// idSource hands out the opaque handle values the core sees. IDs are
// shared across object kinds so a stale handle never aliases another
// object.
type idSource struct {
	next atomic.Uint64
}

func (s *idSource) id() uint64 {
	return s.next.Add(1)
}

// table maps core handles to native Vulkan objects of one kind.
type table[T any] struct {
	ids   *idSource
	mu    sync.RWMutex
	items map[uint64]T
}

func newTable[T any](ids *idSource) *table[T] {
	return &table[T]{ids: ids, items: make(map[uint64]T)}
}

func (t *table[T]) put(v T) uint64 {
	id := t.ids.id()
	t.mu.Lock()
	t.items[id] = v
	t.mu.Unlock()
	return id
}

func (t *table[T]) get(id uint64) (T, bool) {
	t.mu.RLock()
	v, ok := t.items[id]
	t.mu.RUnlock()
	return v, ok
}

// take removes and returns the object behind id.
func (t *table[T]) take(id uint64) (T, bool) {
	t.mu.Lock()
	v, ok := t.items[id]
	delete(t.items, id)
	t.mu.Unlock()
	return v, ok
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
