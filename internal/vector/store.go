package vector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/metrics"
	"github.com/nrcae/ai-s3-search/internal/models"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidTopK is returned when top_k is not positive.
	ErrInvalidTopK = errors.New("top_k must be positive")
	// ErrLengthMismatch is returned when Add gets slices of different lengths.
	ErrLengthMismatch = errors.New("vectors, texts and source ids must have equal length")
	// ErrNotJournaled is returned by Add when the records were added and are searchable
	// but could not be written to the journal.
	ErrNotJournaled = errors.New("records added but not journaled")
)

// Journal persists appended records so a store can be restored after a restart.
type Journal interface {
	Append(ctx context.Context, records []models.Record) error
	Load(ctx context.Context) ([]models.Record, error)
}

// Store owns the vector index, the record table co-indexed with it, readiness
// state, and the result cache. It is the only writer of the index.
type Store struct {
	dim     int
	index   Index
	journal Journal
	logger  *zap.Logger

	// writeMu serializes Add and Restore.
	writeMu sync.Mutex

	recMu   sync.RWMutex
	records []models.Record

	// mu guards readiness, lastIndexed, the result cache, and gen.
	mu          sync.Mutex
	ready       bool
	lastIndexed time.Time
	cache       *resultCache
	// gen increments on every cache purge so searches started before a purge
	// do not write stale results back.
	gen uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithIndex replaces the default flat l2 index. The index dimension must match.
func WithIndex(idx Index) Option {
	return func(s *Store) {
		s.index = idx
	}
}

// WithJournal persists every successful Add.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// WithCacheSize sets the result cache capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		s.cache = newResultCache(n)
	}
}

// DefaultCacheSize is the result cache capacity when none is configured.
const DefaultCacheSize = 1024

// NewStore creates an empty, not-ready store for vectors of length dim.
func NewStore(dim int, opts ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	s := &Store{
		dim:    dim,
		logger: zap.NewNop(),
		cache:  newResultCache(DefaultCacheSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		idx, err := NewFlatIndex(dim, MetricL2)
		if err != nil {
			return nil, err
		}
		s.index = idx
	}
	if s.index.Dimensions() != dim {
		return nil, fmt.Errorf("%w: index has %d, store expects %d", ErrDimensionMismatch, s.index.Dimensions(), dim)
	}
	return s, nil
}

// Dimensions returns the fixed vector length.
func (s *Store) Dimensions() int { return s.dim }

// Add appends one record per vector. The three slices must have equal length and every
// vector must have the store dimension; otherwise the whole batch is rejected and the
// store is unchanged. An empty batch is a no-op. If the journal write fails the records
// stay in the store and the error wraps ErrNotJournaled.
func (s *Store) Add(ctx context.Context, vectors [][]float32, texts, sourceIDs []string) error {
	if len(vectors) != len(texts) || len(vectors) != len(sourceIDs) {
		return fmt.Errorf("%w: %d vectors, %d texts, %d source ids", ErrLengthMismatch, len(vectors), len(texts), len(sourceIDs))
	}
	if len(vectors) == 0 {
		return nil
	}
	for i, vec := range vectors {
		if len(vec) != s.dim {
			s.logger.Error("rejecting batch with mismatched vector",
				zap.Int("position", i),
				zap.Int("got", len(vec)),
				zap.Int("expected", s.dim),
				zap.Int("batch", len(vectors)))
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(vec), s.dim)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]models.Record, len(vectors))
	for i := range vectors {
		batch[i] = models.Record{
			ID:       uuid.NewString(),
			Vector:   slices.Clone(vectors[i]),
			Text:     texts[i],
			SourceID: sourceIDs[i],
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.appendLocked(batch); err != nil {
		return err
	}

	if s.journal != nil {
		if err := s.journal.Append(ctx, batch); err != nil {
			s.logger.Error("journal append failed", zap.Int("records", len(batch)), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrNotJournaled, err)
		}
	}
	s.logger.Debug("records added", zap.Int("count", len(batch)), zap.Int("total", s.Len()))
	return nil
}

// appendLocked publishes records, then makes their vectors searchable. Caller holds writeMu.
func (s *Store) appendLocked(batch []models.Record) error {
	vectors := make([][]float32, len(batch))
	for i := range batch {
		vectors[i] = batch[i].Vector
	}

	// Records go first so any position the index returns maps to a record.
	s.recMu.Lock()
	base := len(s.records)
	if base != s.index.Size() {
		s.recMu.Unlock()
		return fmt.Errorf("record table out of sync with index: %d records, %d vectors", base, s.index.Size())
	}
	s.records = append(s.records, batch...)
	s.recMu.Unlock()

	if err := s.index.Add(vectors); err != nil {
		s.recMu.Lock()
		s.records = s.records[:base]
		s.recMu.Unlock()
		return fmt.Errorf("index add: %w", err)
	}

	s.mu.Lock()
	s.ready = true
	s.lastIndexed = time.Now()
	s.cache.purge()
	s.gen++
	s.mu.Unlock()

	metrics.IndexRecords.Set(float64(base + len(batch)))
	return nil
}

// Restore loads journaled records into an empty store. If any are loaded the store
// becomes ready. Records with the wrong dimension are skipped.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	records, err := s.journal.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.Len() > 0 {
		return 0, fmt.Errorf("restore into non-empty store")
	}
	valid := records[:0]
	for _, r := range records {
		if len(r.Vector) != s.dim {
			s.logger.Warn("skipping journaled record with wrong dimension",
				zap.String("id", r.ID), zap.Int("got", len(r.Vector)), zap.Int("expected", s.dim))
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return 0, nil
	}
	if err := s.appendLocked(valid); err != nil {
		return 0, err
	}
	s.logger.Info("restored records from journal", zap.Int("count", len(valid)))
	return len(valid), nil
}

// MarkReady marks the store ready without adding records. Used when a corpus is empty
// or an ingestion run ends without any successful batch.
func (s *Store) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

// Ready reports whether the store has completed its first ingestion.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	return len(s.records)
}

// Status returns readiness, record count, and the time of the last successful append.
func (s *Store) Status() models.Status {
	s.mu.Lock()
	st := models.Status{Ready: s.ready}
	if !s.lastIndexed.IsZero() {
		t := s.lastIndexed
		st.LastIndexed = &t
	}
	s.mu.Unlock()
	st.RecordCount = s.Len()
	return st
}

// SearchOption narrows a search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	sourceID string
}

// WithSourceID restricts hits to records from one source document.
func WithSourceID(id string) SearchOption {
	return func(o *searchOptions) {
		o.sourceID = id
	}
}

// Search returns up to topK hits ordered by descending score. Scores are 1/(1+distance)
// rescaled so the best hit is 1 and the worst 0, or all 1 when they are equal.
// A store that is not ready or has no vectors returns no hits and no error.
func (s *Store) Search(ctx context.Context, query []float32, topK int, opts ...SearchOption) ([]models.Hit, error) {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready || s.index == nil || s.index.Size() == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), s.dim)
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	params := map[string]string{}
	if o.sourceID != "" {
		params["source_id"] = o.sourceID
	}
	key := resultKey(query, topK, params)

	s.mu.Lock()
	if hits, ok := s.cache.get(key); ok {
		s.mu.Unlock()
		metrics.ResultCache.WithLabelValues("hit").Inc()
		return slices.Clone(hits), nil
	}
	gen := s.gen
	s.mu.Unlock()
	metrics.ResultCache.WithLabelValues("miss").Inc()

	hits, err := s.scan(ctx, query, topK, o)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("index search failed", zap.Error(err))
		return []models.Hit{}, nil
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cache.put(key, hits)
	}
	s.mu.Unlock()
	return slices.Clone(hits), nil
}

func (s *Store) scan(ctx context.Context, query []float32, topK int, o searchOptions) (hits []models.Hit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("index search panic: %v", r)
		}
	}()

	k := topK
	if o.sourceID != "" {
		k = s.index.Size()
	}
	neighbors, err := s.index.Search(ctx, query, min(k, s.index.Size()))
	if err != nil {
		return nil, err
	}

	hits = s.resolve(neighbors, topK, o.sourceID)
	rescale(hits)
	return hits, nil
}

// resolve maps index positions to records, dropping positions without a record.
func (s *Store) resolve(neighbors []Neighbor, topK int, sourceID string) []models.Hit {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	hits := make([]models.Hit, 0, min(topK, len(neighbors)))
	for _, n := range neighbors {
		if n.Position < 0 || n.Position >= len(s.records) {
			continue
		}
		rec := s.records[n.Position]
		if sourceID != "" && rec.SourceID != sourceID {
			continue
		}
		hits = append(hits, models.Hit{
			Score:    distanceScore(n.Distance),
			Text:     rec.Text,
			SourceID: rec.SourceID,
		})
		if len(hits) == topK {
			break
		}
	}
	return hits
}

// CacheLen returns the number of cached result sets.
func (s *Store) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.len()
}

// Close releases the index.
func (s *Store) Close() error {
	return s.index.Close()
}
