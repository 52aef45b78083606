package vector

import (
	"context"
	"errors"
	"testing"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	idx, err := NewFlatIndex(3, MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Position != 0 || results[0].Distance != 0 {
		t.Errorf("top result should be position 0 at distance 0, got %+v", results[0])
	}
	if results[1].Position != 1 {
		t.Errorf("second result should be position 1, got %d", results[1].Position)
	}
}

func TestFlatIndex_Cosine(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricCosine)
	_ = idx.Add([][]float32{{0, 1}, {1, 0}})
	results, err := idx.Search(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Position != 1 {
		t.Errorf("got %+v", results)
	}
}

func TestFlatIndex_KLargerThanSize(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricL2)
	_ = idx.Add([][]float32{{1, 0}, {0, 1}})
	results, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestFlatIndex_RejectsWrongDimension(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricL2)
	err := idx.Add([][]float32{{1, 0}, {1, 0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("partial batch appended: size %d", idx.Size())
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for query, got %v", err)
	}
}

func TestFlatIndex_CopiesInput(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricL2)
	v := []float32{1, 0}
	_ = idx.Add([][]float32{v})
	v[0] = 100
	results, _ := idx.Search(context.Background(), []float32{1, 0}, 1)
	if results[0].Distance != 0 {
		t.Errorf("index aliased caller slice: distance %v", results[0].Distance)
	}
}
