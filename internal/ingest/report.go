package ingest

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrAlreadyRunning is returned when a run is requested while another is in flight.
var ErrAlreadyRunning = errors.New("ingestion already running")

// PipelineError is a failure that ends a run early, such as being unable to list the source.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("ingestion %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Report summarizes one ingestion run.
type Report struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Documents     int           `json:"documents"`
	Skipped       int           `json:"skipped"`
	Extracted     int           `json:"extracted"`
	Empty         int           `json:"empty"`
	Failed        int           `json:"failed"`
	Chunks        int           `json:"chunks"`
	BatchesOK     int           `json:"batches_ok"`
	BatchesFailed int           `json:"batches_failed"`
	RecordsAdded  int           `json:"records_added"`
	Cancelled     bool          `json:"cancelled,omitempty"`
	Fatal         string        `json:"fatal,omitempty"`

	// BatchesUnjournaled counts added batches whose journal write failed. They are
	// searchable but not restored after a restart.
	BatchesUnjournaled int `json:"batches_unjournaled,omitempty"`
}

// Degraded reports whether any part of the run failed.
func (r *Report) Degraded() bool {
	return r.Failed > 0 || r.BatchesFailed > 0 || r.BatchesUnjournaled > 0 || r.Fatal != ""
}

// tally is the concurrent counter set behind a Report.
type tally struct {
	extracted     atomic.Int64
	empty         atomic.Int64
	failed        atomic.Int64
	chunks        atomic.Int64
	batchesOK     atomic.Int64
	batchesFailed atomic.Int64
	records       atomic.Int64
	done          atomic.Int64

	batchesUnjournaled atomic.Int64
}

func (t *tally) fill(r *Report) {
	r.Extracted = int(t.extracted.Load())
	r.Empty = int(t.empty.Load())
	r.Failed = int(t.failed.Load())
	r.Chunks = int(t.chunks.Load())
	r.BatchesOK = int(t.batchesOK.Load())
	r.BatchesFailed = int(t.batchesFailed.Load())
	r.BatchesUnjournaled = int(t.batchesUnjournaled.Load())
	r.RecordsAdded = int(t.records.Load())
}
