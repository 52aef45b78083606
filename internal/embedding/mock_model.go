package embedding

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync/atomic"

	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// MockModel is a deterministic model for tests and for running without ONNX.
// The same text always gets the same unit-length vector.
type MockModel struct {
	dimensions int
	calls      atomic.Int64
	texts      atomic.Int64
}

// NewMockModel returns a model producing deterministic vectors of the given dimensions.
func NewMockModel(dimensions int) *MockModel {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockModel{dimensions: dimensions}
}

// Encode returns one hash-derived vector per text.
func (m *MockModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

// vector draws a unit vector from a generator seeded by the text hash.
func (m *MockModel) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	utils.NormalizeL2(emb)
	return emb
}

// Calls returns how many times Encode has been invoked.
func (m *MockModel) Calls() int { return int(m.calls.Load()) }

// EncodedTexts returns the total number of texts passed to Encode.
func (m *MockModel) EncodedTexts() int { return int(m.texts.Load()) }

// Dimensions returns the embedding dimension.
func (m *MockModel) Dimensions() int { return m.dimensions }

// Close is a no-op.
func (m *MockModel) Close() error { return nil }
