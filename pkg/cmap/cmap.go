package cmap

import (
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Hasher maps a key to a shard hash. The seed is chosen per map.
type Hasher[K comparable] func(key K, seed uint32) uint32

// Uint64 hashes 64-bit keys with murmur3.
func Uint64(key uint64, seed uint32) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return murmur3.Sum32WithSeed(b[:], seed)
}

// String hashes string keys with murmur3.
func String(key string, seed uint32) uint32 {
	return murmur3.Sum32WithSeed([]byte(key), seed)
}

// Map is a concurrent-safe sharded map.
type Map[K comparable, V any] struct {
	shards    []*shard[K, V]
	shardMask uint32
	seed      uint32
	hash      Hasher[K]
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Option configures a Map.
type Option func(*options)

type options struct {
	shards int
}

// WithShardCount sets the shard count. Values that are not a positive
// power of two fall back to DefaultShardCount.
func WithShardCount(n int) Option {
	return func(o *options) { o.shards = n }
}

// New creates a sharded map.
func New[K comparable, V any](hash Hasher[K], opts ...Option) *Map[K, V] {
	o := options{shards: DefaultShardCount}
	for _, opt := range opts {
		opt(&o)
	}
	n := o.shards
	if n <= 0 || n&(n-1) != 0 {
		n = DefaultShardCount
	}

	m := &Map[K, V]{
		shards:    make([]*shard[K, V], n),
		shardMask: uint32(n - 1),
		seed:      rand.Uint32(),
		hash:      hash,
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	return m.shards[m.hash(key, m.seed)&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores a key-value pair.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// SetIfAbsent sets the value only if the key does not exist. It reports
// whether the value was stored.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value
	return true
}

// Delete removes a key.
func (m *Map[K, V]) Delete(key K) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Pop removes a key and returns its value.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// Has checks if a key exists.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Count returns the total number of items.
func (m *Map[K, V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every pair until fn returns false. Locks are taken
// shard by shard, so the view is not a consistent snapshot. fn must not
// modify the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Values returns a copy of all values.
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, m.Count())
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear removes all items.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
}

// ShardCount returns the number of shards.
func (m *Map[K, V]) ShardCount() int {
	return len(m.shards)
}
