// Package cache provides the process-wide response cache shared by all
// price providers. Entries are opaque payload bytes keyed by bucket
// (one per provider) and request signature.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-memory TTL cache. Expired entries are ignored on read and
// overwritten by the next Put; nothing is evicted. The bucket map is locked
// only for bucket lookup and creation; entries live in per-bucket sync.Maps
// so reads and writes contend on the touched key alone.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*sync.Map
	now     func() time.Time
}

// NewStore creates an empty store using the wall clock.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates an empty store reading time from now.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		buckets: make(map[string]*sync.Map),
		now:     now,
	}
}

func (s *Store) bucket(name string, create bool) *sync.Map {
	s.mu.RLock()
	b, ok := s.buckets[name]
	s.mu.RUnlock()
	if ok || !create {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[name]; ok {
		return b
	}
	b = &sync.Map{}
	s.buckets[name] = b
	return b
}

// Get returns the cached payload for (bucket, key). A missing or expired
// entry is a miss; expired entries are left in place. Callers must not
// modify the returned bytes.
func (s *Store) Get(bucket, key string) ([]byte, bool) {
	b := s.bucket(bucket, false)
	if b == nil {
		return nil, false
	}
	v, ok := b.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if !s.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Put stores a payload under (bucket, key) for ttl. A non-positive ttl
// disables caching for the write.
func (s *Store) Put(bucket, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.bucket(bucket, true).Store(key, entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	})
}
