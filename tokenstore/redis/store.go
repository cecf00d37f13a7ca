// Package redis stores tokens in Redis so that several hosts can share them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/metrics"
	"github.com/ebogdum/cloudbox/tokenstore"
)

const (
	storeLabel    = "redis"
	DefaultPrefix = "cloudbox:token:"
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis token store: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix, logger), nil
}

// NewRedisStoreWithClient uses an existing client
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) Put(ctx context.Context, name, kind string, payload []byte) error {
	if name == "" {
		return tokenstore.ErrInvalidName
	}
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "put").Inc()

	now := time.Now().UTC()
	rec := tokenstore.Record{Name: name, Kind: kind, Payload: payload, CreatedAt: now, UpdatedAt: now}
	if existing, err := s.Get(ctx, name); err == nil {
		rec.CreatedAt = existing.CreatedAt
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(name), raw, 0)
	pipe.SAdd(ctx, s.indexKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Debug("Token stored", zap.String("name", name), zap.String("kind", kind))
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (*tokenstore.Record, error) {
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "get").Inc()

	raw, err := s.client.Get(ctx, s.tokenKey(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, tokenstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var rec tokenstore.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "delete").Inc()

	removed, err := s.client.Del(ctx, s.tokenKey(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if removed == 0 {
		return tokenstore.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.indexKey(), name).Err(); err != nil {
		return fmt.Errorf("failed to update token index: %w", err)
	}

	s.logger.Debug("Token deleted", zap.String("name", name))
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "list").Inc()

	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) tokenKey(name string) string {
	return s.prefix + "t:" + name
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}
