// Package cache stores verdicts keyed by the normalized query hash.
// Entries are immutable: the pipeline is deterministic, so the first
// verdict written for a key is the verdict, and later writes for the
// same key are ignored.
package cache

import (
	"container/list"
	"sync"
	"time"

	"qwed/internal/types"
)

// Store is the verdict cache contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the cached verdict for key, reporting whether a live
	// entry was found. Expired entries count as absent.
	Get(key string) (types.Verdict, bool, error)
	// Put stores a verdict under key. Writing an existing live key is a
	// no-op.
	Put(key string, v types.Verdict) error
	// Len reports the number of live entries.
	Len() int
	// Close releases any backing resources.
	Close() error
}

// Policy selects the memory store's eviction behavior.
type Policy string

const (
	// PolicyLRU evicts the least recently used entry when full.
	PolicyLRU Policy = "lru"
	// PolicyFIFO evicts the oldest written entry when full.
	PolicyFIFO Policy = "fifo"
)

type memEntry struct {
	key     string
	verdict types.Verdict
	written time.Time
}

// MemoryStore is a bounded in-memory verdict cache with TTL expiry.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	policy   Policy
	now      func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithPolicy selects the eviction policy.
func WithPolicy(p Policy) MemoryOption {
	return func(s *MemoryStore) { s.policy = p }
}

// NewMemoryStore creates a memory cache holding at most capacity entries,
// each live for ttl. A non-positive ttl disables expiry.
func NewMemoryStore(capacity int, ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	s := &MemoryStore{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		policy:   PolicyLRU,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(key string) (types.Verdict, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return types.Verdict{}, false, nil
	}
	ent := el.Value.(*memEntry)
	if s.expired(ent) {
		s.remove(el)
		return types.Verdict{}, false, nil
	}
	if s.policy == PolicyLRU {
		s.order.MoveToFront(el)
	}
	return ent.verdict, true, nil
}

// Put implements Store. The first write for a key wins.
func (s *MemoryStore) Put(key string, v types.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		if !s.expired(el.Value.(*memEntry)) {
			return nil
		}
		s.remove(el)
	}
	for s.order.Len() >= s.capacity {
		s.evictOne()
	}
	ent := &memEntry{key: key, verdict: v, written: s.now()}
	s.entries[key] = s.order.PushFront(ent)
	return nil
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for el := s.order.Front(); el != nil; el = el.Next() {
		if !s.expired(el.Value.(*memEntry)) {
			n++
		}
	}
	return n
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(ent *memEntry) bool {
	return s.ttl > 0 && s.now().Sub(ent.written) >= s.ttl
}

func (s *MemoryStore) evictOne() {
	// Both policies evict from the back: under LRU the back is the least
	// recently used entry, under FIFO nothing is ever moved so the back
	// is the oldest write.
	if el := s.order.Back(); el != nil {
		s.remove(el)
	}
}

func (s *MemoryStore) remove(el *list.Element) {
	ent := el.Value.(*memEntry)
	s.order.Remove(el)
	delete(s.entries, ent.key)
}
