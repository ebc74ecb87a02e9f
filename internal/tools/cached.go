package tools

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/cache"
	"github.com/farmora/backend/internal/domain"
)

// NewResultCache builds the cross-query tool cache. Failed results are never kept.
func NewResultCache(clock clockwork.Clock, store cache.Store, log *zap.Logger) *cache.Coalescing[domain.ToolResult] {
	return cache.New(cache.Options[domain.ToolResult]{
		Name:      "tool",
		Clock:     clock,
		Store:     store,
		Cacheable: func(r domain.ToolResult) bool { return r.Usable() },
		Logger:    log,
	})
}

// Cached makes an adapter idempotent within ttl: identical params hit the cache,
// and concurrent identical calls share one upstream fetch.
type Cached struct {
	next  Adapter
	cache *cache.Coalescing[domain.ToolResult]
	ttl   time.Duration
	clock clockwork.Clock
}

func NewCached(next Adapter, c *cache.Coalescing[domain.ToolResult], ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, clock: clockwork.NewRealClock()}
}

func (c *Cached) Kind() domain.ToolKind {
	return c.next.Kind()
}

func (c *Cached) Fetch(ctx context.Context, p Params) domain.ToolResult {
	key := p.CacheKey(c.next.Kind())
	res, err := c.cache.Get(ctx, key, c.ttl, func(ctx context.Context) (domain.ToolResult, error) {
		return c.next.Fetch(ctx, p), nil
	})
	if err != nil {
		return Failed(c.next.Kind(), "", describe(err), c.clock.Now())
	}
	return res
}
