// Package cache provides a time-bounded result cache with in-flight
// deduplication: concurrent lookups for the same key share one outbound
// resolution, and completed results are served without network activity
// until their TTL passes.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cfinder/cfinder/backend/internal/metrics"
)

// call is one in-flight resolution. Joiners block on done and then read
// val/err; the fields are written exactly once, before done is closed.
type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Resolver wraps a resolution function with a TTL cache and an in-flight
// map. At most one resolution per key is outstanding at a time.
type Resolver[V any] struct {
	name    string
	size    int
	entries *expirable.LRU[string, V]

	mu       sync.Mutex
	inflight map[string]*call[V]
	last     map[string]V // last successful value per key, kept past TTL
}

// New builds a resolver. name labels the cache in metrics; size bounds both
// the live cache and the stale-fallback map.
func New[V any](name string, size int, ttl time.Duration) *Resolver[V] {
	return &Resolver[V]{
		name:     name,
		size:     size,
		entries:  expirable.NewLRU[string, V](size, nil, ttl),
		inflight: make(map[string]*call[V]),
		last:     make(map[string]V),
	}
}

// Do returns the cached value for key if fresh, joins an in-flight
// resolution if one exists, or invokes fn and shares its outcome. A failed
// fn never poisons the cache: the error propagates to every waiter and the
// next Do starts a new resolution.
func (r *Resolver[V]) Do(key string, fn func() (V, error)) (V, error) {
	r.mu.Lock()
	if v, ok := r.entries.Get(key); ok {
		r.mu.Unlock()
		metrics.CacheHitsTotal.WithLabelValues(r.name).Inc()
		return v, nil
	}
	if c, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		metrics.InFlightSharesTotal.WithLabelValues(r.name).Inc()
		<-c.done
		return c.val, c.err
	}

	c := &call[V]{done: make(chan struct{})}
	r.inflight[key] = c
	r.mu.Unlock()
	metrics.CacheMissesTotal.WithLabelValues(r.name).Inc()

	v, err := fn()

	r.mu.Lock()
	delete(r.inflight, key)
	if err == nil {
		r.entries.Add(key, v)
		if len(r.last) >= r.size*2 {
			// The stale map has no TTL, so shed an arbitrary entry once it
			// outgrows the live cache.
			for k := range r.last {
				delete(r.last, k)
				break
			}
		}
		r.last[key] = v
	}
	r.mu.Unlock()

	c.val, c.err = v, err
	close(c.done)
	return v, err
}

// Last returns the most recent successful value for key, even if its TTL
// has passed. Used to serve stale data when an upstream is down.
func (r *Resolver[V]) Last(key string) (V, bool) {
	r.mu.Lock()
	v, ok := r.last[key]
	r.mu.Unlock()
	if ok {
		metrics.StaleServesTotal.WithLabelValues(r.name).Inc()
	}
	return v, ok
}
