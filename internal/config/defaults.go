package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = "s3"
	}
	if cfg.Source.Include == nil {
		cfg.Source.Include = []string{"**/*.pdf"}
	}
	if cfg.Extract.MaxBytes == 0 {
		cfg.Extract.MaxBytes = 64 << 20
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 5
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 1000
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 300
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = ".s3search/models/embedding.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.Cache == "" {
		cfg.Embedding.Cache = "memory"
	}
	if cfg.Embedding.LRUSize == 0 {
		cfg.Embedding.LRUSize = 10000
	}
	if cfg.Embedding.Redis.Namespace == "" {
		cfg.Embedding.Redis.Namespace = "s3search:emb"
	}
	if cfg.Vector.Index == "" {
		cfg.Vector.Index = "flat"
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "l2"
	}
	if cfg.Vector.CacheSize == 0 {
		cfg.Vector.CacheSize = 1024
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = ".s3search/records.db"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
