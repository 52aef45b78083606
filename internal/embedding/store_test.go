package embedding

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []float32{1, 2}))
	require.NoError(t, s.Set(ctx, "k", []float32{3, 4}))
	got, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)
	assert.Equal(t, 1, s.Len())
}

func TestLRUStore_Evicts(t *testing.T) {
	ctx := context.Background()
	s := NewLRUStore(2)

	require.NoError(t, s.Set(ctx, "a", []float32{1}))
	require.NoError(t, s.Set(ctx, "b", []float32{2}))
	_, ok := s.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, s.Set(ctx, "c", []float32{3}))

	_, ok = s.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = s.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = s.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test", 0, nil)
	ctx := context.Background()

	_, ok := s.Get(ctx, "hello")
	assert.False(t, ok)

	vec := []float32{0.25, -1, 3.5}
	require.NoError(t, s.Set(ctx, "hello", vec))
	require.NoError(t, s.Set(ctx, "hello", []float32{9, 9, 9}))

	got, ok := s.Get(ctx, "hello")
	require.True(t, ok)
	assert.Equal(t, vec, got)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, mr.Keys(), 1)
}

func TestRedisStore_SharedAcrossCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newCache := func(m *MockModel) *Cache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return NewCache(StaticLoader(m), NewRedisStoreWithClient(client, "shared", 0, nil))
	}
	m1, m2 := NewMockModel(4), NewMockModel(4)
	c1, c2 := newCache(m1), newCache(m2)

	a, err := c1.Embed(ctx, []string{"doc"})
	require.NoError(t, err)
	b, err := c2.Embed(ctx, []string{"doc"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, m1.Calls())
	assert.Equal(t, 0, m2.Calls())
}

func TestNewRedisStore_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr}, nil)
	require.Error(t, err)
}
