// Package embedding implements the C3 embedder: single/batch text
// vectorization, L2 normalization, and a small LRU cache over
// single-text lookups (spec §4.3).
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
)

// Embedder is the C3 operation set.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
	ModelID() string
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// cachingEmbedder wraps an Embedder with a small in-process LRU over
// single-text Embed calls (spec §4.3 "A small LRU-cache (~1000
// entries) wraps single-text embeddings"), plus an optional second-tier
// RedisCache shared across worker processes so a cold LRU on one
// worker can still hit another worker's warm cache.
type cachingEmbedder struct {
	inner Embedder
	mu    sync.Mutex
	cache *lru
	tier2 *RedisCache
}

// WithCache wraps inner with an LRU cache of the given capacity.
func WithCache(inner Embedder, capacity int) Embedder {
	return &cachingEmbedder{inner: inner, cache: newLRU(capacity)}
}

// WithTieredCache wraps inner with both the in-process LRU and a
// RedisCache consulted on LRU miss before falling through to inner.
func WithTieredCache(inner Embedder, capacity int, tier2 *RedisCache) Embedder {
	return &cachingEmbedder{inner: inner, cache: newLRU(capacity), tier2: tier2}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *cachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	c.mu.Lock()
	if vec, ok := c.cache.get(key); ok {
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	if c.tier2 != nil {
		if vec, ok := c.tier2.get(ctx, key); ok {
			c.mu.Lock()
			c.cache.put(key, vec)
			c.mu.Unlock()
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.put(key, vec)
	c.mu.Unlock()
	if c.tier2 != nil {
		c.tier2.put(ctx, key, vec)
	}
	return vec, nil
}

func (c *cachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *cachingEmbedder) Dims() int      { return c.inner.Dims() }
func (c *cachingEmbedder) ModelID() string { return c.inner.ModelID() }
