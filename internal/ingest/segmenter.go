// Package ingest runs the ingestion pipeline: list, fetch, extract, segment, embed
// and append to the vector store.
package ingest

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrNoProgress is returned when a segmentation window would never advance.
var ErrNoProgress = errors.New("segment overlap must be smaller than size")

// Segmenter splits text into overlapping spans.
type Segmenter interface {
	Segment(text string, size, overlap int) (iter.Seq[string], error)
}

// WordSegmenter produces windows of size words, each starting size-overlap words after
// the previous one. The last window ends at the last word; no trailing window that is
// fully contained in the previous one is produced.
type WordSegmenter struct{}

// Segment validates the window and returns a lazy sequence of spans.
func (WordSegmenter) Segment(text string, size, overlap int) (iter.Seq[string], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrNoProgress, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrNoProgress, size, overlap)
	}
	step := size - overlap
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		for i := 0; i < len(words); i += step {
			end := min(i+size, len(words))
			if !yield(strings.Join(words[i:end], " ")) {
				return
			}
			if end == len(words) {
				return
			}
		}
	}, nil
}
