package tdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/labthings/internal/cache"
	"github.com/oriys/labthings/internal/metrics"
	"github.com/oriys/labthings/internal/thing"
)

// defaultTTL controls how long a built TD document stays cached before a
// request rebuilds it — long enough to absorb a burst of TD fetches from a
// WoT directory crawler, short enough that a property added at runtime
// shows up without a server restart.
const defaultTTL = 30 * time.Second

// Cache wraps a Builder with the teacher's cache.Cache abstraction, keyed
// by path+"|"+baseURL exactly as spec.md's "(path, base_url)" cache key
// rule names it.
type Cache struct {
	builder *Builder
	backend cache.Cache
	ttl     time.Duration
}

// NewCache wraps builder with backend (typically an InMemoryCache, a
// RedisCache, or a TieredCache composing both — see internal/cache).
func NewCache(builder *Builder, backend cache.Cache, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{builder: builder, backend: backend, ttl: ttl}
}

func cacheKey(path, baseURL string) string {
	return path + "|" + baseURL
}

// Get returns the serialized TD JSON for t at baseURL, building and caching
// it on a miss.
func (c *Cache) Get(ctx context.Context, t *thing.Thing, baseURL string) (json.RawMessage, error) {
	key := cacheKey(t.Name(), baseURL)

	if cached, err := c.backend.Get(ctx, key); err == nil {
		return cached, nil
	}

	start := time.Now()
	doc, err := c.builder.Build(t, baseURL)
	if err != nil {
		return nil, fmt.Errorf("tdoc: build %s: %w", t.Name(), err)
	}
	metrics.RecordTDBuildDuration(t.Name(), float64(time.Since(start).Milliseconds()))

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("tdoc: marshal %s: %w", t.Name(), err)
	}

	_ = c.backend.Set(ctx, key, data, c.ttl)
	return data, nil
}

// Invalidate drops the cached document for one (path, base_url) pair.
// Documents cached for the same Thing under other base URLs are not
// tracked, so they stay until their TTL expires.
func (c *Cache) Invalidate(ctx context.Context, thingName, baseURL string) error {
	return c.backend.Delete(ctx, cacheKey(thingName, baseURL))
}
