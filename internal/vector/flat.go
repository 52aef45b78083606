package vector

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// FlatIndex is an exact brute-force index held in memory.
type FlatIndex struct {
	dimensions int
	metric     Metric
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index.
func NewFlatIndex(dimensions int, metric Metric) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricL2
	}
	return &FlatIndex{dimensions: dimensions, metric: metric}, nil
}

// Add appends copies of vectors. Nothing is appended if any vector has the wrong length.
func (f *FlatIndex) Add(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector %d: %w: got %d, expected %d", i, ErrDimensionMismatch, len(vec), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, vec := range vectors {
		f.vectors = append(f.vectors, slices.Clone(vec))
	}
	return nil
}

// Search scans every vector and returns the k closest, ties broken by position.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	out := make([]Neighbor, len(f.vectors))
	for i, vec := range f.vectors {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = Neighbor{Position: i, Distance: f.metric.distance(query, vec)}
	}
	slices.SortStableFunc(out, func(a, b Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if k > len(out) {
		k = len(out)
	}
	return out[:k], nil
}

// Size returns the number of stored vectors.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the vector length.
func (f *FlatIndex) Dimensions() int { return f.dimensions }

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error { return nil }
