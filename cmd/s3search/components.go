package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/config"
	"github.com/nrcae/ai-s3-search/internal/embedding"
	"github.com/nrcae/ai-s3-search/internal/extract"
	"github.com/nrcae/ai-s3-search/internal/ingest"
	"github.com/nrcae/ai-s3-search/internal/search"
	"github.com/nrcae/ai-s3-search/internal/source"
	"github.com/nrcae/ai-s3-search/internal/storage"
	"github.com/nrcae/ai-s3-search/internal/vector"
)

// Components holds the wired application.
type Components struct {
	Journal     *storage.SQLiteJournal
	Embeddings  *embedding.Cache
	Store       *vector.Store
	Source      source.Source
	Dir         *source.DirSource
	Extractor   *extract.Extractor
	Coordinator *ingest.Coordinator
	Search      *search.Service
	// Restored is the number of records loaded from the journal at startup.
	Restored int

	redis *embedding.RedisStore
}

// Close releases every component that holds resources.
func (c *Components) Close() {
	if c.Embeddings != nil {
		_ = c.Embeddings.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Journal != nil {
		_ = c.Journal.Close()
	}
}

type componentOptions struct {
	// withSource wires the document source and the ingestion coordinator.
	withSource bool
	progress   ingest.ProgressFunc

	// resetJournal deletes journaled records before they are restored.
	resetJournal bool
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if cfg.Storage.PersistOrDefault() {
		c.Journal, err = storage.NewSQLiteJournal(cfg.Storage.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
		if opts.resetJournal {
			if err = c.Journal.Reset(ctx); err != nil {
				return nil, fmt.Errorf("failed to reset journal: %w", err)
			}
			logger.Info("journal cleared", zap.String("path", cfg.Storage.JournalPath))
		}
	}

	embStore, err := newEmbeddingStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if rs, ok := embStore.(*embedding.RedisStore); ok {
		c.redis = rs
	}
	c.Embeddings = embedding.NewCache(modelLoader(cfg, logger), embStore, embedding.WithLogger(logger))

	metric, err := vector.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		return nil, err
	}
	idx, err := vector.NewIndex(cfg.Vector.Index, metric, cfg.Embedding.Dimensions)
	if err != nil {
		logger.Warn("failed to create vector index, falling back to flat",
			zap.String("requested_type", cfg.Vector.Index), zap.Error(err))
		if idx, err = vector.NewFlatIndex(cfg.Embedding.Dimensions, metric); err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.Index),
		zap.String("metric", cfg.Vector.Metric),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	storeOpts := []vector.Option{
		vector.WithLogger(logger),
		vector.WithIndex(idx),
		vector.WithCacheSize(cfg.Vector.CacheSize),
	}
	if c.Journal != nil {
		storeOpts = append(storeOpts, vector.WithJournal(c.Journal))
	}
	c.Store, err = vector.NewStore(cfg.Embedding.Dimensions, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	// Records of documents that never finished are dropped so the next run ingests
	// them whole. Only ingesting commands prune.
	ingested := make(map[string]struct{})
	if c.Journal != nil && opts.withSource {
		pruned, err := c.Journal.PruneIncomplete(ctx)
		if err != nil {
			return nil, err
		}
		if pruned > 0 {
			logger.Info("dropped records of incompletely ingested documents", zap.Int64("records", pruned))
		}
		if ingested, err = c.Journal.IngestedSources(ctx); err != nil {
			return nil, fmt.Errorf("failed to load ingested sources: %w", err)
		}
	}
	c.Restored, err = c.Store.Restore(ctx)
	if err != nil {
		return nil, err
	}

	var coord *ingest.Coordinator
	if opts.withSource {
		if c.Source, c.Dir, err = newSource(ctx, cfg, logger); err != nil {
			return nil, err
		}
		ingestOpts := []ingest.Option{
			ingest.WithLogger(logger),
			ingest.WithIngestedKeys(ingested),
		}
		if c.Journal != nil {
			ingestOpts = append(ingestOpts, ingest.WithSourceLog(c.Journal))
		}
		if opts.progress != nil {
			ingestOpts = append(ingestOpts, ingest.WithProgress(opts.progress))
		}
		c.Extractor = extract.NewExtractor(extract.WithMaxBytes(cfg.Extract.MaxBytes))
		coord, err = ingest.NewCoordinator(
			c.Source,
			c.Extractor,
			c.Embeddings,
			c.Store,
			ingest.Config{
				Workers:      cfg.Ingest.Workers,
				BatchSize:    cfg.Ingest.BatchSize,
				ChunkSize:    cfg.Ingest.ChunkSize,
				ChunkOverlap: cfg.Ingest.ChunkOverlap,
				Normalize:    cfg.Ingest.NormalizeOrDefault(),
				FetchRate:    cfg.Ingest.FetchRate,
				FetchBurst:   cfg.Ingest.FetchBurst,
			},
			ingestOpts...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ingestion: %w", err)
		}
		c.Coordinator = coord
	}

	var ingestor search.Ingestor
	if coord != nil {
		ingestor = coord
	}
	c.Search = search.NewService(c.Embeddings, c.Store, ingestor, search.Config{
		DefaultTopK:    cfg.Search.DefaultTopK,
		MaxTopK:        cfg.Search.MaxTopK,
		NormalizeQuery: cfg.Search.NormalizeQueryOrDefault(),
	}, search.WithLogger(logger))
	return c, nil
}

func newEmbeddingStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embedding.Store, error) {
	switch cfg.Embedding.Cache {
	case "lru":
		return embedding.NewLRUStore(cfg.Embedding.LRUSize), nil
	case "redis":
		rs, err := embedding.NewRedisStore(ctx, cfg.Embedding.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect embedding cache: %w", err)
		}
		return rs, nil
	default:
		return embedding.NewMemoryStore(), nil
	}
}

// modelLoader defers model loading to the first embedding call. A missing ONNX model
// falls back to the deterministic mock model.
func modelLoader(cfg *config.Config, logger *zap.Logger) embedding.ModelLoader {
	dim := cfg.Embedding.Dimensions
	if cfg.Embedding.Backend == "mock" {
		return embedding.StaticLoader(embedding.NewMockModel(dim))
	}
	return func(context.Context) (embedding.Model, error) {
		if _, err := os.Stat(cfg.Embedding.ModelPath); err != nil {
			logger.Warn("embedding model not found, using mock model",
				zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
			return embedding.NewMockModel(dim), nil
		}
		m, err := embedding.NewONNXModel(cfg.Embedding.ModelPath, dim, cfg.Embedding.MaxTokens)
		if err != nil {
			return nil, err
		}
		logger.Info("embedding model loaded", zap.String("model_path", cfg.Embedding.ModelPath))
		return m, nil
	}
}

func newSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (source.Source, *source.DirSource, error) {
	matcher, err := source.NewMatcher(cfg.Source.Include, cfg.Source.Exclude)
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Source.Type {
	case "dir":
		dir, err := source.NewDirSource(cfg.Source.Dir, matcher)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open source directory: %w", err)
		}
		return dir, dir, nil
	default:
		s3src, err := source.NewS3Source(ctx, cfg.Source.S3, matcher, source.WithS3Logger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize s3 source: %w", err)
		}
		return s3src, nil, nil
	}
}
