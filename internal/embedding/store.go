package embedding

import "context"

// Store holds text→vector entries for the Cache. Implementations must be safe for
// concurrent use. Set keeps the first value written for a text so every caller
// observes the same vector.
type Store interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, vector []float32) error
	Len() int
}
