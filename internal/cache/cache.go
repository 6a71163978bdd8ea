package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// sweepEvery is the number of writes between sweeps of expired entries.
const sweepEvery = 100

// Cache stores values of type V with an expiration time. It is safe for
// concurrent use.
type Cache[V any] struct {
	items           sync.Map
	writes          atomic.Uint32
	defaultDuration time.Duration
	now             func() time.Time
}

// An item represents a value with expiration time.
type item[V any] struct {
	data    V
	expires int64
}

// New creates a new cache. Entries set with a zero duration live for
// defaultDuration; a non positive defaultDuration means ten minutes.
func New[V any](defaultDuration time.Duration) *Cache[V] {
	if defaultDuration <= 0 {
		defaultDuration = 10 * time.Minute
	}

	return &Cache[V]{
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// Set sets a value for the given key with an expiration duration.
// A zero duration uses the default; a negative one stores the value forever.
func (cache *Cache[V]) Set(key string, value V, duration time.Duration) {
	var expires int64

	if duration == 0 {
		duration = cache.defaultDuration
	}

	if duration > 0 {
		expires = cache.now().Add(duration).UnixNano()
	}

	cache.items.Store(key, item[V]{
		data:    value,
		expires: expires,
	})

	if cache.writes.Add(1) >= sweepEvery {
		cache.DeleteExpired()
		cache.writes.Store(0)
	}
}

// Get gets the value for the given key.
func (cache *Cache[V]) Get(key string) (V, bool) {
	var zero V

	obj, exists := cache.items.Load(key)
	if !exists {
		return zero, false
	}

	it := obj.(item[V])
	if it.expires > 0 && cache.now().UnixNano() > it.expires {
		cache.items.Delete(key)
		return zero, false
	}

	return it.data, true
}

// DeleteExpired removes every expired entry.
func (cache *Cache[V]) DeleteExpired() {
	now := cache.now().UnixNano()

	cache.items.Range(func(key, value any) bool {
		it := value.(item[V])
		if it.expires > 0 && now > it.expires {
			cache.items.Delete(key)
		}
		return true
	})
}

// Delete deletes the key and its value from the cache.
func (cache *Cache[V]) Delete(key string) {
	cache.items.Delete(key)
}

// Len counts the entries, expired or not.
func (cache *Cache[V]) Len() int {
	n := 0
	cache.items.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
