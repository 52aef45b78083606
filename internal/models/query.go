package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned by Validate when the query text is blank.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchQuery is a semantic search request.
type SearchQuery struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// Validate trims the query, rejects blank text, and applies the top_k default and cap.
func (q *SearchQuery) Validate(defaultTopK, maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	q.SourceID = strings.TrimSpace(q.SourceID)
	return nil
}
