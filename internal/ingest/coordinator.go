package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nrcae/ai-s3-search/internal/metrics"
	"github.com/nrcae/ai-s3-search/internal/source"
	"github.com/nrcae/ai-s3-search/internal/vector"
)

// Extractor turns raw document bytes into text.
type Extractor interface {
	Extract(key string, raw []byte) (string, error)
}

// Embedder maps texts to vectors, one per text in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the append side of the vector store.
type VectorStore interface {
	Add(ctx context.Context, vectors [][]float32, texts, sourceIDs []string) error
	MarkReady()
	Ready() bool
}

// Config tunes a Coordinator.
type Config struct {
	Workers      int
	BatchSize    int
	ChunkSize    int
	ChunkOverlap int
	// Normalize embeds trimmed, case-folded text. The stored text is left as extracted.
	Normalize bool
	// FetchRate limits document fetches per second. Zero means unlimited.
	FetchRate  float64
	FetchBurst int
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		Workers:      5,
		BatchSize:    1000,
		ChunkSize:    300,
		ChunkOverlap: 50,
		Normalize:    true,
	}
}

// ProgressFunc is called after each document finishes extraction. It may be called
// from several goroutines at once.
type ProgressFunc func(done, total int)

// Coordinator drives ingestion runs. At most one run is in flight at a time.
type Coordinator struct {
	source    source.Source
	extractor Extractor
	segmenter Segmenter
	embedder  Embedder
	store     VectorStore
	cfg       Config
	limiter   *rate.Limiter
	logger    *zap.Logger
	progress  ProgressFunc
	sourceLog SourceLog

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    *Report
	// seen holds keys whose every chunk is stored.
	seen map[string]struct{}
	// partial holds the committed chunk positions of documents that are not yet
	// complete, so a later run adds only the missing chunks.
	partial map[string]map[int]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithSegmenter replaces the default WordSegmenter.
func WithSegmenter(s Segmenter) Option {
	return func(c *Coordinator) {
		c.segmenter = s
	}
}

// WithProgress registers a per-document progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// WithSourceLog persists the key of every document once all its chunks are stored.
func WithSourceLog(l SourceLog) Option {
	return func(c *Coordinator) {
		c.sourceLog = l
	}
}

// WithIngestedKeys marks keys as already present in the store so runs skip them.
func WithIngestedKeys(keys map[string]struct{}) Option {
	return func(c *Coordinator) {
		for k := range keys {
			c.seen[k] = struct{}{}
		}
	}
}

// NewCoordinator validates cfg and returns a Coordinator.
func NewCoordinator(src source.Source, ext Extractor, emb Embedder, store VectorStore, cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	c := &Coordinator{
		source:    src,
		extractor: ext,
		segmenter: WordSegmenter{},
		embedder:  emb,
		store:     store,
		cfg:       cfg,
		logger:    zap.NewNop(),
		seen:      make(map[string]struct{}),
		partial:   make(map[string]map[int]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Fail at construction rather than on every document.
	if _, err := c.segmenter.Segment("", cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.FetchRate > 0 {
		burst := cfg.FetchBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), burst)
	}
	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Run lists the source and ingests every key not already ingested. A key counts as
// ingested once all of its chunks were added; documents with a failed batch are
// retried by the next run. It blocks until the run ends. A listing failure is returned as a *PipelineError; per-document and
// per-batch failures are only counted in the report.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	if !c.tryStart() {
		return nil, ErrAlreadyRunning
	}
	return c.run(ctx, nil)
}

// IngestKeys ingests the given keys instead of listing the source.
func (c *Coordinator) IngestKeys(ctx context.Context, keys []string) (*Report, error) {
	if !c.tryStart() {
		return nil, ErrAlreadyRunning
	}
	return c.run(ctx, keys)
}

// Trigger starts a run in the background and returns immediately.
func (c *Coordinator) Trigger() error {
	if !c.tryStart() {
		return ErrAlreadyRunning
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.run(c.baseCtx, nil)
	}()
	return nil
}

// Running reports whether a run is in flight.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastReport returns the report of the most recent completed run, or nil.
func (c *Coordinator) LastReport() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	return &r
}

// Shutdown cancels background runs and waits for them to finish or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) tryStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

type chunk struct {
	text     string
	sourceID string
	// pos is the chunk's position within its document.
	pos int
}

// run executes one pipeline pass. keys nil means list the source. The caller has
// already set running.
func (c *Coordinator) run(ctx context.Context, keys []string) (rep *Report, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rep = &Report{StartedAt: time.Now()}
	wasReady := c.store.Ready()
	var t tally

	defer func() {
		if r := recover(); r != nil {
			err = &PipelineError{Stage: "run", Err: fmt.Errorf("panic: %v", r)}
			c.logger.Error("ingestion panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
				zap.Bool("critical", true))
		}
		if !wasReady && !c.store.Ready() {
			c.store.MarkReady()
			c.logger.Info("store marked ready after ingestion without records")
		}
		t.fill(rep)
		rep.Duration = time.Since(rep.StartedAt)
		rep.Cancelled = ctx.Err() != nil && err == nil
		if err != nil {
			rep.Fatal = err.Error()
		}
		c.finish(rep)
	}()

	if keys == nil {
		keys, err = c.source.List(ctx)
		if err != nil {
			c.logger.Error("listing source failed", zap.Error(err), zap.Bool("critical", true))
			return rep, &PipelineError{Stage: "list", Err: err}
		}
	}
	keys = c.pending(keys, rep)
	rep.Documents = len(keys)
	c.logger.Info("ingestion started",
		zap.Int("documents", len(keys)),
		zap.Int("skipped", rep.Skipped),
		zap.Int("workers", c.cfg.Workers),
		zap.Int("batch_size", c.cfg.BatchSize))
	if len(keys) == 0 {
		return rep, nil
	}

	docs := newLedger(func(key string, persisted bool) { c.complete(ctx, key, persisted) })
	chunks := make(chan chunk, c.cfg.BatchSize)
	go func() {
		defer close(chunks)
		var g errgroup.Group
		g.SetLimit(c.cfg.Workers)
		for _, key := range keys {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				c.extractOne(ctx, key, chunks, docs, &t)
				if c.progress != nil {
					c.progress(int(t.done.Add(1)), len(keys))
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	batch := make([]chunk, 0, c.cfg.BatchSize)
	for ch := range chunks {
		batch = append(batch, ch)
		if len(batch) == c.cfg.BatchSize {
			c.processBatch(ctx, batch, docs, &t)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.processBatch(ctx, batch, docs, &t)
	}
	return rep, nil
}

// pending drops keys that were already ingested or are duplicated in the list.
func (c *Coordinator) pending(keys []string, rep *Report) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(keys))
	batch := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := c.seen[k]; ok {
			rep.Skipped++
			continue
		}
		if _, ok := batch[k]; ok {
			continue
		}
		batch[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// complete marks key ingested and, when its records reached the journal, records it
// in the source log.
func (c *Coordinator) complete(ctx context.Context, key string, persisted bool) {
	c.mu.Lock()
	c.seen[key] = struct{}{}
	delete(c.partial, key)
	c.mu.Unlock()

	if c.sourceLog == nil {
		return
	}
	if !persisted {
		c.logger.Warn("document stored but not journaled, it will be ingested again after a restart",
			zap.String("key", key))
		return
	}
	if err := c.sourceLog.MarkIngested(ctx, key); err != nil {
		c.logger.Warn("failed to record ingested document", zap.String("key", key), zap.Error(err))
	}
}

// committedPositions returns a copy of the chunk positions of key already stored.
func (c *Coordinator) committedPositions(key string) map[int]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]struct{}, len(c.partial[key]))
	for pos := range c.partial[key] {
		out[pos] = struct{}{}
	}
	return out
}

func (c *Coordinator) recordCommitted(batch []chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range batch {
		set, ok := c.partial[ch.sourceID]
		if !ok {
			set = make(map[int]struct{})
			c.partial[ch.sourceID] = set
		}
		set[ch.pos] = struct{}{}
	}
}

// extractOne fetches, extracts and segments one document. Failures are logged and
// counted; they never stop the run. Chunks stored by an earlier run are not sent again.
func (c *Coordinator) extractOne(ctx context.Context, key string, out chan<- chunk, docs *ledger, t *tally) {
	log := c.logger.With(zap.String("key", key))
	defer func() {
		if r := recover(); r != nil {
			t.failed.Add(1)
			metrics.IngestDocuments.WithLabelValues("failed").Inc()
			log.Error("extraction panicked", zap.Any("panic", r))
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
	}
	raw, err := c.source.Fetch(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.failed.Add(1)
		metrics.IngestDocuments.WithLabelValues("failed").Inc()
		log.Warn("fetch failed", zap.Error(err))
		return
	}
	text, err := c.extractor.Extract(key, raw)
	if err != nil {
		t.failed.Add(1)
		metrics.IngestDocuments.WithLabelValues("failed").Inc()
		log.Warn("extraction failed", zap.Error(err))
		return
	}
	if strings.TrimSpace(text) == "" {
		t.empty.Add(1)
		metrics.IngestDocuments.WithLabelValues("empty").Inc()
		log.Debug("document has no text")
		docs.seal(key)
		return
	}

	spans, err := c.segmenter.Segment(text, c.cfg.ChunkSize, c.cfg.ChunkOverlap)
	if err != nil {
		t.failed.Add(1)
		metrics.IngestDocuments.WithLabelValues("failed").Inc()
		log.Error("segmentation failed", zap.Error(err))
		return
	}
	stored := c.committedPositions(key)
	n, pos := 0, -1
	for span := range spans {
		pos++
		if _, ok := stored[pos]; ok {
			continue
		}
		docs.emit(key)
		select {
		case out <- chunk{text: span, sourceID: key, pos: pos}:
			n++
		case <-ctx.Done():
			return
		}
	}
	docs.seal(key)
	t.extracted.Add(1)
	t.chunks.Add(int64(n))
	metrics.IngestDocuments.WithLabelValues("extracted").Inc()
	metrics.IngestChunks.Add(float64(n))
	log.Debug("document segmented", zap.Int("chunks", n), zap.Int("already_stored", len(stored)), zap.Int("bytes", len(raw)))
}

// processBatch embeds one batch and appends it to the store. A failure is logged and
// counted, the batch's documents stay incomplete, and processing continues with the
// next batch.
func (c *Coordinator) processBatch(ctx context.Context, batch []chunk, docs *ledger, t *tally) {
	texts := make([]string, len(batch))
	inputs := make([]string, len(batch))
	sources := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.text
		sources[i] = ch.sourceID
		inputs[i] = ch.text
		if c.cfg.Normalize {
			inputs[i] = Normalize(ch.text)
		}
	}

	fail := func(stage string, err error) {
		docs.fail(sources)
		t.batchesFailed.Add(1)
		metrics.IngestBatches.WithLabelValues("failed").Inc()
		c.logger.Error("batch failed",
			zap.String("stage", stage),
			zap.Int("size", len(batch)),
			zap.Error(err))
	}

	vectors, err := c.embedder.Embed(ctx, inputs)
	if err != nil {
		fail("embed", err)
		return
	}
	persisted := true
	if err := c.store.Add(ctx, vectors, texts, sources); err != nil {
		if !errors.Is(err, vector.ErrNotJournaled) {
			fail("add", err)
			return
		}
		persisted = false
		t.batchesUnjournaled.Add(1)
	}
	t.batchesOK.Add(1)
	t.records.Add(int64(len(batch)))
	metrics.IngestBatches.WithLabelValues("ok").Inc()
	c.recordCommitted(batch)
	docs.commit(sources, persisted)
	c.logger.Debug("batch added", zap.Int("size", len(batch)), zap.Bool("journaled", persisted))
}

func (c *Coordinator) finish(rep *Report) {
	outcome := "ok"
	switch {
	case rep.Fatal != "":
		outcome = "fatal"
	case rep.Degraded():
		outcome = "degraded"
	}
	metrics.IngestRuns.WithLabelValues(outcome).Inc()
	metrics.IngestDuration.Observe(rep.Duration.Seconds())

	c.logger.Info("ingestion finished",
		zap.String("outcome", outcome),
		zap.Int("documents", rep.Documents),
		zap.Int("extracted", rep.Extracted),
		zap.Int("empty", rep.Empty),
		zap.Int("failed", rep.Failed),
		zap.Int("chunks", rep.Chunks),
		zap.Int("batches_ok", rep.BatchesOK),
		zap.Int("batches_failed", rep.BatchesFailed),
		zap.Int("records_added", rep.RecordsAdded),
		zap.Bool("cancelled", rep.Cancelled),
		zap.Duration("duration", rep.Duration))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = rep
	c.running = false
}

// IsPipelineError reports whether err ended a run early.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}
