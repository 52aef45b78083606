package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/ingest"
	"github.com/nrcae/ai-s3-search/internal/metrics"
	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/internal/vector"
)

var (
	// ErrBadRequest wraps every query validation failure.
	ErrBadRequest = errors.New("bad request")
	// ErrNotReady is returned until the vector store has been marked ready.
	ErrNotReady = errors.New("index not ready")
)

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the read side of the vector store.
type VectorStore interface {
	Ready() bool
	Status() models.Status
	Search(ctx context.Context, query []float32, topK int, opts ...vector.SearchOption) ([]models.Hit, error)
}

// Ingestor runs ingestion in the background.
type Ingestor interface {
	Trigger() error
	Running() bool
	LastReport() *ingest.Report
}

// Config tunes query handling.
type Config struct {
	DefaultTopK    int
	MaxTopK        int
	NormalizeQuery bool
}

// DefaultConfig returns the default query settings.
func DefaultConfig() Config {
	return Config{DefaultTopK: 5, MaxTopK: 100, NormalizeQuery: true}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service answers semantic search queries against the vector store.
type Service struct {
	embedder Embedder
	store    VectorStore
	ingestor Ingestor
	config   Config
	logger   *zap.Logger
}

// NewService creates a search service. ingestor may be nil for read-only use.
func NewService(embedder Embedder, store VectorStore, ingestor Ingestor, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = def.MaxTopK
	}
	if cfg.DefaultTopK > cfg.MaxTopK {
		cfg.DefaultTopK = cfg.MaxTopK
	}
	s := &Service{
		embedder: embedder,
		store:    store,
		ingestor: ingestor,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query once and returns the nearest chunks, best first.
func (s *Service) Search(ctx context.Context, query models.SearchQuery) ([]models.Hit, error) {
	start := time.Now()
	hits, err := s.search(ctx, &query)
	metrics.SearchLatency.Observe(time.Since(start).Seconds())
	metrics.SearchRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil && !errors.Is(err, ErrBadRequest) && !errors.Is(err, ErrNotReady) {
		s.logger.Warn("search failed", zap.String("query", query.Query), zap.Error(err))
	}
	return hits, err
}

func (s *Service) search(ctx context.Context, query *models.SearchQuery) ([]models.Hit, error) {
	if err := query.Validate(s.config.DefaultTopK, s.config.MaxTopK); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if !s.store.Ready() {
		return nil, ErrNotReady
	}

	text := query.Query
	if s.config.NormalizeQuery {
		text = ingest.Normalize(text)
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	var opts []vector.SearchOption
	if query.SourceID != "" {
		opts = append(opts, vector.WithSourceID(query.SourceID))
	}
	hits, err := s.store.Search(ctx, vectors[0], query.TopK, opts...)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) || errors.Is(err, vector.ErrInvalidTopK) {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// Status reports store readiness, size and ingestion state.
func (s *Service) Status() models.Status {
	st := s.store.Status()
	if s.ingestor != nil {
		st.Indexing = s.ingestor.Running()
		if rep := s.ingestor.LastReport(); rep != nil {
			st.Degraded = rep.Degraded()
		}
	}
	return st
}

// TriggerIngestion starts a background ingestion run.
func (s *Service) TriggerIngestion() error {
	if s.ingestor == nil {
		return errors.New("ingestion not configured")
	}
	return s.ingestor.Trigger()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	default:
		return "error"
	}
}
