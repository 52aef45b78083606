//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// ONNXModel runs a sentence-embedding model through ONNX Runtime. It requires CGO and the
// onnxruntime shared library. Inference runs one text at a time over pre-allocated tensors.
type ONNXModel struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXModel loads the model at modelPath. InitializeEnvironment is called if not already done.
func NewONNXModel(modelPath string, dimensions, maxTokens int) (*ONNXModel, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
		}
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}

	m := &ONNXModel{dimensions: dimensions, maxTokens: maxTokens, tokenizer: HashTokenizer{}}
	shape := ort.NewShape(1, int64(maxTokens))
	var err error
	if m.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	if m.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	if m.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	if m.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	m.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{m.inputIDs, m.attentionMask, m.tokenTypeIDs},
		[]ort.ArbitraryTensor{m.output},
		nil,
	)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("create ONNX session for %s: %w", modelPath, err)
	}
	return m, nil
}

// Encode embeds every text. The whole call fails if any inference fails.
func (m *ONNXModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, fmt.Errorf("onnx model is closed")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, mask, types := m.tokenizer.Tokenize(text, m.maxTokens)
		copy(m.inputIDs.GetData(), ids)
		copy(m.attentionMask.GetData(), mask)
		copy(m.tokenTypeIDs.GetData(), types)
		if err := m.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed for text %d: %w", i, err)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, m.output.GetData()[:m.dimensions])
		utils.NormalizeL2(vec)
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (m *ONNXModel) Dimensions() int {
	return m.dimensions
}

// Close destroys the session and tensors.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.session != nil {
		err = m.session.Destroy()
		m.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{m.inputIDs, m.attentionMask, m.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if m.output != nil {
		_ = m.output.Destroy()
	}
	m.inputIDs, m.attentionMask, m.tokenTypeIDs, m.output = nil, nil, nil, nil
	return err
}
