// Package vector holds the append-only vector index, its record table, and the
// read-through result cache.
package vector

import "context"

// Index is an append-only nearest-neighbor index. Positions are assigned in insertion
// order starting at zero and never change. Search must be safe to call concurrently
// with other Search calls; Add is serialized by the caller.
type Index interface {
	Add(vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Size() int
	Dimensions() int
	Close() error
}

// Neighbor is one index hit: the position of the stored vector and its distance
// from the query (smaller is closer).
type Neighbor struct {
	Position int
	Distance float32
}
