// Package embedding provides text embedding models and the shared embedding cache.
package embedding

import "context"

// Model turns a batch of texts into fixed-dimension vectors.
// Encode must return exactly one vector per input text, in input order.
type Model interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ModelLoader constructs a Model. Loading is expensive, so the Cache calls it lazily.
type ModelLoader func(ctx context.Context) (Model, error)

// StaticLoader returns a loader that always yields m.
func StaticLoader(m Model) ModelLoader {
	return func(context.Context) (Model, error) { return m, nil }
}
