package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/metrics"
)

// Store is an optional second level shared between replicas.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// FetchFunc loads a value on a miss. ctx is detached from any single caller and
// is cancelled only when every caller waiting on the fetch has gone away.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type Options[V any] struct {
	Name  string
	Clock clockwork.Clock
	Store Store
	// Cacheable filters values before they are stored. Nil stores every value
	// returned without error.
	Cacheable func(V) bool
	Logger    *zap.Logger
	// SweepInterval is how often expired entries are dropped. Sweeps run on the
	// next Get or Set once the interval has passed on Clock.
	SweepInterval time.Duration
	// MaxEntries caps the local map. At the cap, the entry closest to expiry
	// makes room for the new one.
	MaxEntries int
}

type Stats struct {
	Hits      int64
	Misses    int64
	Coalesced int64
	Fetches   int64
	Evicted   int64
}

type entry[V any] struct {
	val     V
	expires time.Time
}

type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Coalescing is a TTL cache that runs at most one fetch per key at a time.
// Callers arriving while a fetch is running wait for its result instead of
// starting their own.
type Coalescing[V any] struct {
	name       string
	clock      clockwork.Clock
	store      Store
	cacheable  func(V) bool
	logger     *zap.Logger
	sweepEvery time.Duration
	maxEntries int

	mu        sync.Mutex
	entries   map[string]entry[V]
	calls     map[string]*call[V]
	stats     Stats
	nextSweep time.Time
}

func New[V any](opts Options[V]) *Coalescing[V] {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	return &Coalescing[V]{
		name:       opts.Name,
		clock:      opts.Clock,
		store:      opts.Store,
		cacheable:  opts.Cacheable,
		logger:     opts.Logger,
		sweepEvery: opts.SweepInterval,
		maxEntries: opts.MaxEntries,
		entries:    make(map[string]entry[V]),
		calls:      make(map[string]*call[V]),
		nextSweep:  opts.Clock.Now().Add(opts.SweepInterval),
	}
}

// Get returns the cached value for key or runs fetch once for all concurrent
// callers. A caller whose ctx ends stops waiting; the fetch itself is cancelled
// only when it was the last one waiting.
func (c *Coalescing[V]) Get(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	c.mu.Lock()
	c.sweepLocked(c.clock.Now())
	if e, ok := c.entries[key]; ok {
		if c.clock.Now().Before(e.expires) {
			c.stats.Hits++
			c.mu.Unlock()
			metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
			return e.val, nil
		}
		delete(c.entries, key)
	}

	cl, inflight := c.calls[key]
	if inflight {
		cl.waiters++
		c.stats.Coalesced++
		c.mu.Unlock()
		metrics.CacheRequests.WithLabelValues(c.name, "coalesced").Inc()
		return c.wait(ctx, key, cl)
	}

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cl = &call[V]{done: make(chan struct{}), waiters: 1, cancel: cancel}
	c.calls[key] = cl
	c.stats.Misses++
	c.mu.Unlock()
	metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()

	go c.run(fetchCtx, key, ttl, cl, fetch)

	return c.wait(ctx, key, cl)
}

func (c *Coalescing[V]) wait(ctx context.Context, key string, cl *call[V]) (V, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		c.mu.Lock()
		cl.waiters--
		if cl.waiters == 0 {
			cl.cancel()
			if c.calls[key] == cl {
				delete(c.calls, key)
			}
		}
		c.mu.Unlock()
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Coalescing[V]) run(ctx context.Context, key string, ttl time.Duration, cl *call[V], fetch FetchFunc[V]) {
	defer cl.cancel()

	val, fromStore := c.loadStore(ctx, key)
	var err error
	if !fromStore {
		c.mu.Lock()
		c.stats.Fetches++
		c.mu.Unlock()
		val, err = fetch(ctx)
	}

	keep := err == nil && ttl > 0 && (c.cacheable == nil || c.cacheable(val))
	if keep && !fromStore {
		c.saveStore(ctx, key, val, ttl)
	}

	c.mu.Lock()
	cl.val, cl.err = val, err
	if keep {
		c.putLocked(key, val, ttl)
	}
	if c.calls[key] == cl {
		delete(c.calls, key)
	}
	c.mu.Unlock()
	close(cl.done)
}

func (c *Coalescing[V]) loadStore(ctx context.Context, key string) (V, bool) {
	var val V
	if c.store == nil {
		return val, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache store read failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
		return val, false
	}
	if !ok {
		return val, false
	}
	if err := json.Unmarshal(data, &val); err != nil {
		c.logger.Warn("cache store entry unreadable", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
		var zero V
		return zero, false
	}
	if c.cacheable != nil && !c.cacheable(val) {
		var zero V
		return zero, false
	}
	metrics.CacheRequests.WithLabelValues(c.name, "store_hit").Inc()
	return val, true
}

func (c *Coalescing[V]) saveStore(ctx context.Context, key string, val V, ttl time.Duration) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		c.logger.Warn("cache value not encodable", zap.String("cache", c.name), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("cache store write failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
	}
}

// Peek returns a live entry without fetching.
func (c *Coalescing[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Set stores val directly, bypassing any fetch.
func (c *Coalescing[V]) Set(key string, val V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.sweepLocked(c.clock.Now())
	c.putLocked(key, val, ttl)
	c.mu.Unlock()
}

// putLocked stores an entry, evicting the one closest to expiry when the map
// is full. c.mu must be held.
func (c *Coalescing[V]) putLocked(key string, val V, ttl time.Duration) {
	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.nextSweep = now
		c.sweepLocked(now)
		if len(c.entries) >= c.maxEntries {
			var victim string
			var soonest time.Time
			for k, e := range c.entries {
				if victim == "" || e.expires.Before(soonest) {
					victim, soonest = k, e.expires
				}
			}
			delete(c.entries, victim)
			c.stats.Evicted++
		}
	}
	c.entries[key] = entry[V]{val: val, expires: now.Add(ttl)}
}

// sweepLocked drops expired entries once per sweep interval. c.mu must be held.
func (c *Coalescing[V]) sweepLocked(now time.Time) {
	if now.Before(c.nextSweep) {
		return
	}
	c.nextSweep = now.Add(c.sweepEvery)
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.stats.Evicted += int64(n)
		c.logger.Debug("cache swept", zap.String("cache", c.name), zap.Int("expired", n), zap.Int("live", len(c.entries)))
	}
}

// Purge drops local entries whose key starts with prefix and returns how many went.
func (c *Coalescing[V]) Purge(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len counts live entries. Expired ones waiting for a sweep are not included.
func (c *Coalescing[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

// Size is the number of entries held in memory, expired or not.
func (c *Coalescing[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Coalescing[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coalescing[V]) Name() string {
	return c.name
}
