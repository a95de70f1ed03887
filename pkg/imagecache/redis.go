package imagecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long cached image bytes live. Zero means no expiry.
	TTL time.Duration
}

// RedisStore is a Store backed by Redis. Image bytes are stored raw under
// their identifier; no serialization layer is involved.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates and connects a new RedisStore. It pings the Redis
// server to ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore{
		client: rdb,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

// Fetch returns the bytes stored for key. A redis.Nil result is a normal miss
// and maps to ErrNotFound; any other error is a genuine problem.
func (s *RedisStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("key %q: %w", key, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error during fetch.")
		return nil, fmt.Errorf("redis get for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Redis cache hit.")
	return data, nil
}

// Write stores data under key with the configured TTL.
func (s *RedisStore) Write(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set image bytes in Redis.")
		return fmt.Errorf("redis set for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully stored image bytes in Redis.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.client.Close()
	}
	return nil
}
