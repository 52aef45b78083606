//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("ONNX model requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXModel stub type when built without CGO (see onnx.go for the real implementation).
type ONNXModel struct{}

// NewONNXModel returns an error when built without CGO.
func NewONNXModel(_ string, _, _ int) (*ONNXModel, error) {
	return nil, errNoCGO
}

// Encode always fails without CGO.
func (m *ONNXModel) Encode(context.Context, []string) ([][]float32, error) { return nil, errNoCGO }

// Dimensions returns zero without CGO.
func (m *ONNXModel) Dimensions() int { return 0 }

// Close is a no-op without CGO.
func (m *ONNXModel) Close() error { return nil }
