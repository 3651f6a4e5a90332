package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memEntry struct {
	id      string
	value   string
	expires time.Time // zero means never
}

// Memory is an in-process LRU store with optional TTL.
type Memory struct {
	mu     sync.Mutex
	max    int
	ttl    time.Duration
	order  *list.List // front = most recently used
	items  map[string]*list.Element
	closed bool
	now    func() time.Time
}

// NewMemory creates a Memory store holding at most maxEntries (<=0 means
// unbounded). ttl<=0 keeps entries until evicted.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		max:   maxEntries,
		ttl:   ttl,
		order: list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func memID(tier Tier, key string) string { return string(tier) + ":" + key }

// Get implements Store.
func (m *Memory) Get(_ context.Context, tier Tier, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	el, ok := m.items[memID(tier, key)]
	if !ok {
		return "", false, nil
	}
	e := el.Value.(*memEntry)
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.order.Remove(el)
		delete(m.items, e.id)
		return "", false, nil
	}
	m.order.MoveToFront(el)
	return e.value, true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, tier Tier, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	var expires time.Time
	if m.ttl > 0 {
		expires = m.now().Add(m.ttl)
	}
	id := memID(tier, key)
	if el, ok := m.items[id]; ok {
		e := el.Value.(*memEntry)
		e.value, e.expires = value, expires
		m.order.MoveToFront(el)
		return nil
	}
	m.items[id] = m.order.PushFront(&memEntry{id: id, value: value, expires: expires})
	for m.max > 0 && m.order.Len() > m.max {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memEntry).id)
	}
	return nil
}

// Len implements Store. Expired entries not yet touched are counted.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len(), nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = map[string]*list.Element{}
	m.order.Init()
	return nil
}
