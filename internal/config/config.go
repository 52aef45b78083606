// Package config provides configuration loading and structs for the search service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nrcae/ai-s3-search/internal/embedding"
	"github.com/nrcae/ai-s3-search/internal/source"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Extract   ExtractConfig   `yaml:"extract"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SourceConfig selects where documents are read from.
type SourceConfig struct {
	// Type is "s3" or "dir".
	Type    string          `yaml:"type"`
	S3      source.S3Config `yaml:"s3"`
	Dir     string          `yaml:"dir"`
	Include []string        `yaml:"include"`
	Exclude []string        `yaml:"exclude"`
}

// ExtractConfig holds text extraction limits.
type ExtractConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// IngestConfig holds pipeline settings.
type IngestConfig struct {
	Workers      int     `yaml:"workers"`
	BatchSize    int     `yaml:"batch_size"`
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	Normalize    *bool   `yaml:"normalize"`
	FetchRate    float64 `yaml:"fetch_rate"`
	FetchBurst   int     `yaml:"fetch_burst"`
	// OnStart runs ingestion in the background when the server starts.
	OnStart *bool `yaml:"on_start"`
	// RescanOnStart runs the startup pass even when records were restored from the
	// journal. Documents already fully ingested are skipped, so the pass only adds new
	// or unfinished documents. Use "s3search index --reset" for a full re-index.
	RescanOnStart bool `yaml:"rescan_on_start"`
}

// NormalizeOrDefault returns whether chunk text is normalized before embedding; true when unset.
func (c *IngestConfig) NormalizeOrDefault() bool {
	return boolOr(c.Normalize, true)
}

// OnStartOrDefault returns whether the server ingests at startup; true when unset.
func (c *IngestConfig) OnStartOrDefault() bool {
	return boolOr(c.OnStart, true)
}

// EmbeddingConfig holds model and embedding cache settings.
type EmbeddingConfig struct {
	// Backend is "onnx" or "mock".
	Backend    string `yaml:"backend"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	// Cache is "memory", "lru" or "redis".
	Cache   string                `yaml:"cache"`
	LRUSize int                   `yaml:"lru_size"`
	Redis   embedding.RedisConfig `yaml:"redis"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	// Index is "flat" or "faiss".
	Index     string `yaml:"index"`
	Metric    string `yaml:"metric"`
	CacheSize int    `yaml:"cache_size"`
}

// StorageConfig holds the record journal settings.
type StorageConfig struct {
	JournalPath string `yaml:"journal_path"`
	Persist     *bool  `yaml:"persist"`
}

// PersistOrDefault returns whether records are journaled; true when unset.
func (c *StorageConfig) PersistOrDefault() bool {
	return boolOr(c.Persist, true)
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultTopK    int   `yaml:"default_top_k"`
	MaxTopK        int   `yaml:"max_top_k"`
	NormalizeQuery *bool `yaml:"normalize_query"`
}

// NormalizeQueryOrDefault returns whether queries are normalized; true when unset.
func (c *SearchConfig) NormalizeQueryOrDefault() bool {
	return boolOr(c.NormalizeQuery, true)
}

// WatchConfig holds directory watch settings. Only used with the dir source.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults, expands paths,
// and applies environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	cfg.Storage.JournalPath = expandPath(cfg.Storage.JournalPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Source.Dir != "" {
		cfg.Source.Dir = expandPath(cfg.Source.Dir, configDir)
	}
	return &cfg, nil
}

// Save writes the config to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides source settings from the environment.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Source.S3.Bucket, "S3_BUCKET")
	setString(&cfg.Source.S3.Prefix, "S3_PREFIX")
	setString(&cfg.Source.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.Source.S3.Region, "AWS_REGION")
	setString(&cfg.Source.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Source.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Embedding.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Embedding.Redis.Password, "REDIS_PASSWORD")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Type {
	case "s3":
		if c.Source.S3.Bucket == "" {
			errs = append(errs, errors.New("source.s3.bucket is required"))
		}
	case "dir":
		if c.Source.Dir == "" {
			errs = append(errs, errors.New("source.dir is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.type %q", c.Source.Type))
	}
	if c.Ingest.Workers <= 0 || c.Ingest.BatchSize <= 0 {
		errs = append(errs, errors.New("ingest.workers and ingest.batch_size must be positive"))
	}
	if c.Ingest.ChunkSize <= 0 || c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap (%d) must be in [0, chunk_size %d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize))
	}
	switch c.Embedding.Backend {
	case "onnx", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.backend %q", c.Embedding.Backend))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	switch c.Embedding.Cache {
	case "memory", "lru":
	case "redis":
		if c.Embedding.Redis.Addr == "" {
			errs = append(errs, errors.New("embedding.redis.addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.cache %q", c.Embedding.Cache))
	}
	switch c.Vector.Index {
	case "flat":
	case "faiss":
		if c.Vector.Metric != "l2" {
			errs = append(errs, errors.New("the faiss index only supports the l2 metric"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector.index %q", c.Vector.Index))
	}
	if c.Vector.Metric != "l2" && c.Vector.Metric != "cosine" {
		errs = append(errs, fmt.Errorf("unknown vector.metric %q", c.Vector.Metric))
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		errs = append(errs, errors.New("search.default_top_k exceeds search.max_top_k"))
	}
	return errors.Join(errs...)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
			return abs
		}
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func boolOr(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}
