package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL time.Duration
	// NegativeTTL caches loader errors; zero disables negative caching
	NegativeTTL time.Duration
	MaxEntries  int
}

type MetricsHooks struct {
	OnHit   func()
	OnMiss  func()
	OnError func()
}

type entry[V any] struct {
	value     V
	err       error
	expiresAt time.Time
}

// Cache is a TTL cache with FIFO eviction that collapses concurrent loads
// of the same key into one call.
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
	now     func() time.Time
}

func New[V any](opts Options, hooks MetricsHooks) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	return &Cache[V]{
		items:   make(map[string]*entry[V]),
		order:   make([]string, 0, 64),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

type Loader[V any] func(ctx context.Context, key string) (V, error)

// Get returns the cached value for key, calling loader on a miss.
func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		if c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			if c.metrics.OnHit != nil {
				c.metrics.OnHit()
			}
			return e.value, e.err
		}
		delete(c.items, key)
		c.removeFromOrder(key)
	}
	c.mu.Unlock()

	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss()
	}
	res, err, _ := c.sf.Do(key, func() (interface{}, error) {
		val, err := loader(ctx, key)
		c.store(key, val, err)
		return val, err
	})
	if err != nil {
		if c.metrics.OnError != nil {
			c.metrics.OnError()
		}
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (c *Cache[V]) store(key string, val V, err error) {
	e := &entry[V]{value: val, err: err}
	if err != nil {
		if c.opts.NegativeTTL <= 0 {
			return
		}
		var zero V
		e.value = zero
		e.expiresAt = c.now().Add(c.opts.NegativeTTL)
	} else {
		e.expiresAt = c.now().Add(c.opts.TTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
}

// Set stores val under key with the default TTL.
func (c *Cache[V]) Set(key string, val V) {
	c.store(key, val, nil)
}

// Peek returns a live cached value without triggering a load.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.items[key]
	if !ok || e.err != nil || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until they are touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache[V]) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
	}
}
