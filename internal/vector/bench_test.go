package vector

import (
	"context"
	"fmt"
	"testing"
)

func benchVectors(n, dim int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dim)
		vecs[i][0] = float32(i) / float32(n)
		vecs[i][i%dim] += 1
	}
	return vecs
}

func BenchmarkFlatIndexSearch(b *testing.B) {
	idx, _ := NewFlatIndex(384, MetricL2)
	_ = idx.Add(benchVectors(1000, 384))
	ctx := context.Background()
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func benchStore(b *testing.B, cacheSize int) *Store {
	b.Helper()
	s, err := NewStore(384, WithCacheSize(cacheSize))
	if err != nil {
		b.Fatal(err)
	}
	vecs := benchVectors(1000, 384)
	texts := make([]string, len(vecs))
	ids := make([]string, len(vecs))
	for i := range vecs {
		texts[i] = fmt.Sprintf("chunk %d", i)
		ids[i] = fmt.Sprintf("doc-%d.pdf", i%20)
	}
	if err := s.Add(context.Background(), vecs, texts, ids); err != nil {
		b.Fatal(err)
	}
	return s
}

func BenchmarkStoreSearch_Uncached(b *testing.B) {
	s := benchStore(b, 0)
	ctx := context.Background()
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Search(ctx, query, 10)
	}
}

func BenchmarkStoreSearch_Cached(b *testing.B) {
	s := benchStore(b, DefaultCacheSize)
	ctx := context.Background()
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Search(ctx, query, 10)
	}
}
