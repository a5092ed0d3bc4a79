package cache

// Stats reports the usage of one memo table.
type Stats struct {
	Name      string
	Entries   int
	Hits      int
	Misses    int
	Evictions int
}

// Table is a memo table whose entries are grouped into buckets so that a
// mutation can evict every entry it may have made stale in one call.
// A disabled table never stores anything, which gives an uncached reference
// mode for tests. Tables are not safe for concurrent use; the planner is
// single-threaded.
type Table[B comparable, K comparable, V any] struct {
	name    string
	enabled bool
	buckets map[B]map[K]V
	entries int
	stats   Stats
}

// NewTable creates a table.
func NewTable[B comparable, K comparable, V any](name string, enabled bool) *Table[B, K, V] {
	return &Table[B, K, V]{
		name:    name,
		enabled: enabled,
		buckets: make(map[B]map[K]V),
	}
}

// Get returns a cached value.
func (t *Table[B, K, V]) Get(bucket B, key K) (V, bool) {
	var zero V
	if !t.enabled {
		return zero, false
	}
	if entries, ok := t.buckets[bucket]; ok {
		if v, ok := entries[key]; ok {
			t.stats.Hits++
			return v, true
		}
	}
	t.stats.Misses++
	return zero, false
}

// Put stores a value.
func (t *Table[B, K, V]) Put(bucket B, key K, val V) {
	if !t.enabled {
		return
	}
	entries, ok := t.buckets[bucket]
	if !ok {
		entries = make(map[K]V)
		t.buckets[bucket] = entries
	}
	if _, exists := entries[key]; !exists {
		t.entries++
	}
	entries[key] = val
}

// EvictBucket drops every entry of a bucket and returns how many were removed.
func (t *Table[B, K, V]) EvictBucket(bucket B) int {
	entries, ok := t.buckets[bucket]
	if !ok {
		return 0
	}
	n := len(entries)
	delete(t.buckets, bucket)
	t.entries -= n
	t.stats.Evictions += n
	return n
}

// Clear drops everything.
func (t *Table[B, K, V]) Clear() {
	t.stats.Evictions += t.entries
	t.buckets = make(map[B]map[K]V)
	t.entries = 0
}

// Len returns the number of cached entries.
func (t *Table[B, K, V]) Len() int {
	return t.entries
}

// Enabled reports whether the table stores values.
func (t *Table[B, K, V]) Enabled() bool {
	return t.enabled
}

// Stats returns a snapshot of the usage counters.
func (t *Table[B, K, V]) Stats() Stats {
	s := t.stats
	s.Name = t.name
	s.Entries = t.entries
	return s
}
