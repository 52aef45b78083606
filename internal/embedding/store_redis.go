package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
}

// RedisStore shares embeddings between processes through Redis. Vectors are stored as
// little-endian float32 bytes under namespace:sha256(text).
type RedisStore struct {
	client    goredis.UniversalClient
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
	sets      atomic.Int64
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.Namespace, cfg.TTL, logger), nil
}

// NewRedisStoreWithClient wraps an existing client. A zero ttl keeps entries forever.
func NewRedisStoreWithClient(client goredis.UniversalClient, namespace string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if namespace == "" {
		namespace = "s3search:emb"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, namespace: namespace, ttl: ttl, logger: logger}
}

func (s *RedisStore) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return s.namespace + ":" + hex.EncodeToString(sum[:])
}

// Get returns the vector for text. Redis errors are logged and reported as a miss.
func (s *RedisStore) Get(ctx context.Context, text string) ([]float32, bool) {
	b, err := s.client.Get(ctx, s.key(text)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.Warn("redis embedding lookup failed", zap.Error(err))
		}
		return nil, false
	}
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	return utils.BytesToFloat32s(b), true
}

// Set writes the vector with SETNX so the first writer wins.
func (s *RedisStore) Set(ctx context.Context, text string, vector []float32) error {
	ok, err := s.client.SetNX(ctx, s.key(text), utils.Float32sToBytes(vector), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		s.sets.Add(1)
	}
	return nil
}

// Len returns the number of entries this process has written.
func (s *RedisStore) Len() int {
	return int(s.sets.Load())
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
