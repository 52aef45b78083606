package vector

import "fmt"

// IndexType selects the index implementation.
type IndexType string

const (
	// IndexTypeFlat is in-memory brute-force search.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS uses a FAISS IndexFlatL2. Requires the faiss build tag and libfaiss_c.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an index of the given type. Supported types: "flat" (default), "faiss".
// FAISS only supports the l2 metric.
func NewIndex(indexType string, metric Metric, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimensions, metric)
	case IndexTypeFAISS:
		if metric != MetricL2 && metric != "" {
			return nil, fmt.Errorf("faiss index supports only the l2 metric, got %s", metric)
		}
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
