package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrcae/ai-s3-search/internal/metrics"
)

type failingModel struct {
	*MockModel
	err   error
	short bool
}

func (m *failingModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out, err := m.MockModel.Encode(ctx, texts)
	if m.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, err
}

func TestCache_EmbedPreservesOrderAndDedupes(t *testing.T) {
	model := NewMockModel(8)
	c := NewCache(StaticLoader(model), nil)

	out, err := c.Embed(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, out[0], out[2])
	assert.NotEqual(t, out[0], out[1])
	assert.Equal(t, 1, model.Calls())
	assert.Equal(t, 2, model.EncodedTexts())
	assert.Equal(t, 2, c.Len())
}

func TestCache_HitMetricCountsStoredLookups(t *testing.T) {
	hit := metrics.EmbeddingCache.WithLabelValues("hit")
	miss := metrics.EmbeddingCache.WithLabelValues("miss")
	c := NewCache(StaticLoader(NewMockModel(8)), nil)
	ctx := context.Background()

	hits, misses := testutil.ToFloat64(hit), testutil.ToFloat64(miss)
	_, err := c.Embed(ctx, []string{"x", "x", "x", "y"})
	require.NoError(t, err)
	assert.Equal(t, hits, testutil.ToFloat64(hit), "repeats of an uncached text are not hits")
	assert.Equal(t, misses+2, testutil.ToFloat64(miss))

	_, err = c.Embed(ctx, []string{"x", "y", "x"})
	require.NoError(t, err)
	assert.Equal(t, hits+3, testutil.ToFloat64(hit))
	assert.Equal(t, misses+2, testutil.ToFloat64(miss))
}

func TestCache_EmbedUsesStoredVectors(t *testing.T) {
	model := NewMockModel(8)
	c := NewCache(StaticLoader(model), NewMemoryStore())
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)

	second, err := c.Embed(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, 3, model.EncodedTexts(), "only gamma is new on the second call")

	_, err = c.Embed(ctx, []string{"alpha", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, 2, model.Calls(), "fully cached call must not reach the model")
}

func TestCache_EmbedEmpty(t *testing.T) {
	model := NewMockModel(4)
	c := NewCache(StaticLoader(model), nil)
	out, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, model.Calls())
}

func TestCache_ModelFailureCachesNothing(t *testing.T) {
	boom := errors.New("boom")
	model := &failingModel{MockModel: NewMockModel(4), err: boom}
	c := NewCache(StaticLoader(model), nil)

	out, err := c.Embed(context.Background(), []string{"x", "y"})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, out)
	assert.Equal(t, 0, c.Len())
}

func TestCache_WrongVectorCount(t *testing.T) {
	model := &failingModel{MockModel: NewMockModel(4), short: true}
	c := NewCache(StaticLoader(model), nil)

	out, err := c.Embed(context.Background(), []string{"x", "y"})
	require.ErrorIs(t, err, ErrVectorCount)
	assert.Nil(t, out)
	assert.Equal(t, 0, c.Len())
}

func TestCache_LoadFailureIsRetried(t *testing.T) {
	var attempts atomic.Int32
	loader := func(context.Context) (Model, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("model file missing")
		}
		return NewMockModel(4), nil
	}
	c := NewCache(loader, nil)

	_, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)

	out, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestCache_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	model := NewMockModel(4)
	loader := func(context.Context) (Model, error) {
		loads.Add(1)
		return model, nil
	}
	c := NewCache(loader, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Embed(context.Background(), []string{"same"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, loads.Load())
}

func TestCache_MissingLoader(t *testing.T) {
	c := NewCache(nil, nil)
	_, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
}
