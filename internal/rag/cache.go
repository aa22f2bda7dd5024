package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the number of query embeddings kept by
// NewCachingEmbedder when no size is given.
const DefaultQueryCacheSize = 512

// CachingEmbedder memoizes embeddings by exact text in a bounded LRU. It is
// meant for the query path, where the same question is often asked against
// different source sets; ingestion should use the uncached embedder.
type CachingEmbedder struct {
	// next computes embeddings on a miss.
	next Embedder

	// cache maps a text digest to its vector.
	cache *lru.Cache[string, []float32]
}

// NewCachingEmbedder wraps next with an LRU of size entries.
func NewCachingEmbedder(next Embedder, size int) (*CachingEmbedder, error) {
	if next == nil {
		return nil, fmt.Errorf("rag: cached embedder must not be nil")
	}
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("rag: init embedding cache: %w", err)
	}
	return &CachingEmbedder{next: next, cache: cache}, nil
}

// Embed returns cached vectors where available and embeds the misses in a
// single call to the wrapped embedder, preserving input order.
func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		keys[i] = cacheKey(text)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		if len(vectors[j]) > 0 {
			c.cache.Add(keys[i], vectors[j])
		}
	}
	return out, nil
}

// Len returns the number of cached embeddings.
func (c *CachingEmbedder) Len() int { return c.cache.Len() }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
