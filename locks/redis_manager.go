package locks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultRedisTTL bounds how long a crashed holder blocks a key
const DefaultRedisTTL = 5 * time.Minute

// releaseScript deletes the key only when this owner still holds it
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisOptions configures a RedisManager
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisManager shares locks between processes through Redis SET NX keys
// that carry a per-manager owner id.
type RedisManager struct {
	client  redis.UniversalClient
	logger  *zap.Logger
	ttl     time.Duration
	ownerID string
}

// NewRedisManager connects to Redis and creates a lock manager
func NewRedisManager(opts RedisOptions, logger *zap.Logger) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisManagerWithClient(client, opts.TTL, logger)
}

// NewRedisManagerWithClient creates a lock manager on an existing client
func NewRedisManagerWithClient(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) (*RedisManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	ownerBytes := make([]byte, 16)
	if _, err := rand.Read(ownerBytes); err != nil {
		return nil, fmt.Errorf("failed to generate owner ID: %w", err)
	}

	return &RedisManager{
		client:  client,
		logger:  logger,
		ttl:     ttl,
		ownerID: hex.EncodeToString(ownerBytes),
	}, nil
}

// Acquire attempts to take the lock for key
func (m *RedisManager) Acquire(ctx context.Context, key string) (bool, error) {
	lockKey := KeyPrefix + key

	acquired, err := m.client.SetNX(ctx, lockKey, m.ownerID, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for key %s: %w", key, err)
	}

	if acquired {
		m.logger.Debug("Lock acquired",
			zap.String("key", key),
			zap.String("owner", m.ownerID),
			zap.Duration("ttl", m.ttl))
	} else {
		m.logger.Debug("Lock already held", zap.String("key", key))
	}
	return acquired, nil
}

// Release gives up the lock for key if this manager owns it
func (m *RedisManager) Release(ctx context.Context, key string) error {
	lockKey := KeyPrefix + key

	deleted, err := releaseScript.Run(ctx, m.client, []string{lockKey}, m.ownerID).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock for key %s: %w", key, err)
	}

	if deleted == 1 {
		m.logger.Debug("Lock released",
			zap.String("key", key),
			zap.String("owner", m.ownerID))
	} else {
		m.logger.Warn("Lock not owned or already expired",
			zap.String("key", key),
			zap.String("owner", m.ownerID))
	}
	return nil
}

// Close closes the Redis client connection
func (m *RedisManager) Close() error {
	return m.client.Close()
}
