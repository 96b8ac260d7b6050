package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bull/rag-server/internal/domain"
)

// CacheObserver is told about cache hits and misses.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// Cached memoises embeddings by text hash. Repeated queries and re-ingested
// documents skip the provider round-trip.
type Cached struct {
	next     domain.EmbeddingClient
	lru      *expirable.LRU[string, []float32]
	observer CacheObserver
}

// NewCached wraps next with an LRU of size entries that expire after ttl.
// A size of zero or less returns next unchanged.
func NewCached(next domain.EmbeddingClient, size int, ttl time.Duration, observer CacheObserver) domain.EmbeddingClient {
	if size <= 0 {
		return next
	}
	return &Cached{
		next:     next,
		lru:      expirable.NewLRU[string, []float32](size, nil, ttl),
		observer: observer,
	}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.lru.Get(key); ok {
		if c.observer != nil {
			c.observer.CacheHit()
		}
		return v, nil
	}
	if c.observer != nil {
		c.observer.CacheMiss()
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, v)
	return v, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
