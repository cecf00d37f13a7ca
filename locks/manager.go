// Package locks serializes work on a shared key, in process or across
// processes through Redis.
package locks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/metrics"
)

// KeyPrefix namespaces every lock key
const KeyPrefix = "cloudbox:lock:"

// ErrLockHeld is returned by WithLock when another holder owns the key
var ErrLockHeld = errors.New("lock is held by another owner")

// Manager defines the interface for locking operations
type Manager interface {
	// Acquire attempts to take the lock for key without blocking.
	// It returns false when another owner holds it.
	Acquire(ctx context.Context, key string) (bool, error)

	// Release gives up a lock taken by this manager
	Release(ctx context.Context, key string) error

	// Close releases the resources of the manager
	Close() error
}

// WithLock runs fn while holding the lock for key. It fails with ErrLockHeld
// instead of waiting when the lock is taken.
func WithLock(ctx context.Context, m Manager, key string, logger *zap.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	acquired, err := m.Acquire(ctx, key)
	if err != nil {
		metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		metrics.LockOperationsTotal.WithLabelValues("acquire", "busy").Inc()
		return fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	metrics.LockOperationsTotal.WithLabelValues("acquire", "success").Inc()
	metrics.ActiveLocks.Inc()

	defer func() {
		metrics.ActiveLocks.Dec()
		if err := m.Release(context.Background(), key); err != nil {
			metrics.LockOperationsTotal.WithLabelValues("release", "failure").Inc()
			logger.Error("Failed to release lock", zap.String("lock_key", key), zap.Error(err))
			return
		}
		metrics.LockOperationsTotal.WithLabelValues("release", "success").Inc()
	}()

	return fn(ctx)
}
