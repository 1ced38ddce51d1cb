package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes vectors of an underlying Embedder in a bounded ristretto
// cache. Only cache misses are sent to the inner embedder, in one batch.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
	name  string
}

// NewCached wraps inner with a cache holding up to size vectors. name
// namespaces keys so two models never share entries.
func NewCached(inner Embedder, name string, size int64) (*Cached, error) {
	if size <= 0 {
		size = 10000
	}
	// Cost is counted in vectors, so ristretto's own per-item overhead must
	// not be added on top.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache, name: name}, nil
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		if v, ok := c.cache.Get(c.key(t)); ok {
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := checkCount("embedder", len(vecs), len(missTexts)); err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Set(c.key(missTexts[j]), vecs[j], 1)
	}
	return out, nil
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Close releases the cache's background goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}

func (c *Cached) key(text string) string {
	return c.name + "\x00" + text
}
