package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/metrics"
)

// ErrVectorCount is returned when the model yields a different number of vectors than texts.
var ErrVectorCount = errors.New("embedding: model returned wrong number of vectors")

// Cache memoizes text→vector lookups in front of a lazily loaded Model.
// It is safe for concurrent use and is shared by ingestion and search.
type Cache struct {
	loader ModelLoader
	store  Store
	logger *zap.Logger

	model  atomic.Pointer[loadedModel]
	loadMu sync.Mutex
}

type loadedModel struct {
	Model
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache creates a cache backed by store. A nil store gets an unbounded MemoryStore.
func NewCache(loader ModelLoader, store Store, opts ...CacheOption) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{loader: loader, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns one vector per text, in input order. Cached texts resolve from the store;
// the distinct uncached texts are encoded in a single model call. On any model failure
// the whole call fails and nothing is cached.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	pending := make(map[string][]int)
	var missing []string
	hits := 0
	for i, text := range texts {
		if positions, ok := pending[text]; ok {
			pending[text] = append(positions, i)
			continue
		}
		if vec, ok := c.store.Get(ctx, text); ok {
			out[i] = vec
			hits++
			continue
		}
		pending[text] = []int{i}
		missing = append(missing, text)
	}
	metrics.EmbeddingCache.WithLabelValues("hit").Add(float64(hits))
	metrics.EmbeddingCache.WithLabelValues("miss").Add(float64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	model, err := c.Model(ctx)
	if err != nil {
		return nil, err
	}
	metrics.EmbeddingModelCalls.Inc()
	vectors, err := model.Encode(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("encode %d texts: %w", len(missing), err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorCount, len(vectors), len(missing))
	}

	for j, text := range missing {
		vec := vectors[j]
		for _, i := range pending[text] {
			out[i] = vec
		}
		if err := c.store.Set(ctx, text, vec); err != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	c.logger.Debug("embedded texts",
		zap.Int("requested", len(texts)),
		zap.Int("cached", hits),
		zap.Int("encoded", len(missing)))
	return out, nil
}

// Model returns the loaded model, loading it on first use. Concurrent first callers
// share one load. A failed load is returned and retried on the next call.
func (c *Cache) Model(ctx context.Context) (Model, error) {
	if m := c.model.Load(); m != nil {
		return m.Model, nil
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if m := c.model.Load(); m != nil {
		return m.Model, nil
	}
	if c.loader == nil {
		return nil, errors.New("embedding: no model loader configured")
	}
	m, err := c.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embedding model: %w", err)
	}
	c.model.Store(&loadedModel{Model: m})
	c.logger.Info("embedding model loaded", zap.Int("dimensions", m.Dimensions()))
	return m, nil
}

// Len returns the number of cached texts.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Close releases the model if it was loaded.
func (c *Cache) Close() error {
	if m := c.model.Load(); m != nil {
		return m.Close()
	}
	return nil
}
