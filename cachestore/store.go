// Package cachestore implements the shared response cache: a fixed-size,
// hash-addressed array of slots, each independently locked. Collisions
// overwrite; there is no chaining and no global lock. It is the Go
// translation of the reference's Cache<K,V,Hasher> template and its
// Accessor, which pins one slot's mutex for the lifetime of a lookup or
// update.
package cachestore

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/fenwicklabs/proxycache/httpmsg"
	"github.com/fenwicklabs/proxycache/rfc7234"
)

// Entry is what one cache slot holds: the URL it was stored under, the
// cached message, and the cache-policy metadata needed to judge freshness
// on a later lookup.
type Entry struct {
	URL     string
	Message *httpmsg.Message
	Info    rfc7234.ResponseCacheInfo
}

type slot struct {
	mu    sync.Mutex
	key   string
	value Entry
	full  bool
}

// Store is a fixed-size array of N slots addressed by hash(key) mod N.
type Store struct {
	slots []slot
}

// New returns a Store with exactly n slots; an n of zero or less yields a
// single slot.
func New(n int) *Store {
	if n <= 0 {
		n = 1
	}
	return &Store{slots: make([]slot, n)}
}

// Len returns the number of slots (the store's fixed capacity).
func (s *Store) Len() int { return len(s.slots) }

func (s *Store) index(key string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(len(s.slots)))
}

// Accessor pins a single slot's lock for the duration of one lookup/update.
// It must be released with Close once the caller is done with the slot.
type Accessor struct {
	slot *slot
	key  string
}

// Open acquires the slot for key and returns an Accessor. The caller must
// call Close when finished.
func (s *Store) Open(key string) *Accessor {
	sl := &s.slots[s.index(key)]
	sl.mu.Lock()
	return &Accessor{slot: sl, key: key}
}

// Close releases the slot's lock.
func (a *Accessor) Close() {
	a.slot.mu.Unlock()
}

// Get returns whatever key and value are currently stored in the slot (which
// may belong to a different key, in the case of a hash collision) and
// whether the slot is occupied at all. The caller must compare the returned
// key against the key it looked up to detect a collision.
func (a *Accessor) Get() (storedKey string, value Entry, occupied bool) {
	return a.slot.key, a.slot.value, a.slot.full
}

// Set unconditionally overwrites the slot with (the accessor's key, value).
func (a *Accessor) Set(value Entry) {
	a.slot.key = a.key
	a.slot.value = value
	a.slot.full = true
}

// Lookup is a convenience wrapper around Open/Get/Close for read-only
// access when the caller does not need to hold the slot across a
// read-then-maybe-write sequence.
func (s *Store) Lookup(key string) (Entry, bool) {
	acc := s.Open(key)
	defer acc.Close()
	storedKey, value, occupied := acc.Get()
	if !occupied || storedKey != key {
		return Entry{}, false
	}
	return value, true
}

// SlotInfo is a read-only, point-in-time view of one slot, used only by the
// admin API's operational dashboard.
type SlotInfo struct {
	Index    int
	Occupied bool
	Key      string
	Expires  time.Time
}

// Snapshot takes a slot-by-slot (not cross-slot-atomic) reading of the
// store's occupancy. It never holds more than one slot's lock at a time,
// consistent with the store's documented per-slot-only consistency
// guarantee.
func (s *Store) Snapshot() []SlotInfo {
	out := make([]SlotInfo, len(s.slots))
	for i := range s.slots {
		sl := &s.slots[i]
		sl.mu.Lock()
		info := SlotInfo{Index: i, Occupied: sl.full, Key: sl.key}
		if sl.full {
			info.Expires = sl.value.Info.ResponseTime.Add(sl.value.Info.FreshnessLifetime - sl.value.Info.CorrectedInitialAge)
		}
		sl.mu.Unlock()
		out[i] = info
	}
	return out
}
