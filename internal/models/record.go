// Package models defines core data structures for indexed records, queries, and search hits.
package models

import "time"

// Record is one embedded chunk. Records are immutable once appended to a store.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"-"`
	Text     string    `json:"text"`
	SourceID string    `json:"source_id,omitempty"`
}

// Hit is a single ranked search result.
type Hit struct {
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
	SourceID string  `json:"source_id,omitempty"`
}

// Status describes the readiness and size of the index.
type Status struct {
	Ready       bool       `json:"ready"`
	RecordCount int        `json:"record_count"`
	LastIndexed *time.Time `json:"last_indexed_time,omitempty"`
	// Indexing is true while an ingestion run is in flight.
	Indexing bool `json:"indexing"`
	// Degraded is true when the most recent ingestion run had failed documents or batches.
	Degraded bool `json:"degraded"`
}
