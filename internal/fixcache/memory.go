package fixcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. MaxEntries and TTL bound memory use
// only; an evicted key simply misses again.
type MemoryStore struct {
	MaxEntries int           // 0 = unbounded
	TTL        time.Duration // 0 = no expiry

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

// NewMemoryStore creates a bounded in-memory store.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		MaxEntries: maxEntries,
		TTL:        ttl,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the entry for workKey, or nil if absent or expired.
func (m *MemoryStore) Get(_ context.Context, workKey string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[workKey]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*Entry)
	if m.TTL > 0 && m.now().Sub(e.GeneratedAt) > m.TTL {
		m.removeElement(el)
		return nil, nil
	}
	m.ll.MoveToFront(el)
	cp := *e
	return &cp, nil
}

// Put stores e unless its key is already present.
func (m *MemoryStore) Put(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[e.WorkKey]; ok {
		return nil
	}
	cp := *e
	m.items[e.WorkKey] = m.ll.PushFront(&cp)
	if m.MaxEntries > 0 && m.ll.Len() > m.MaxEntries {
		m.removeElement(m.ll.Back())
	}
	return nil
}

// MarkReused increments the reuse counter of workKey.
func (m *MemoryStore) MarkReused(_ context.Context, workKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[workKey]; ok {
		el.Value.(*Entry).Reuses++
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

func (m *MemoryStore) removeElement(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*Entry).WorkKey)
}
