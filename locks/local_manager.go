package locks

import (
	"context"
	"sync"
	"time"
)

// LocalManager keeps locks in process memory. With a TTL, a lock that was
// never released expires and may be taken again.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

// NewLocalManager creates an in-memory lock manager. A ttl of zero keeps
// locks until they are released.
func NewLocalManager(ttl time.Duration) *LocalManager {
	return &LocalManager{
		locks: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Acquire takes the lock if it is free or expired.
func (m *LocalManager) Acquire(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, exists := m.locks[KeyPrefix+key]; exists {
		if expires.IsZero() || now.Before(expires) {
			return false, nil
		}
	}

	var expires time.Time
	if m.ttl > 0 {
		expires = now.Add(m.ttl)
	}
	m.locks[KeyPrefix+key] = expires
	return true, nil
}

// Release frees the lock for key
func (m *LocalManager) Release(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, KeyPrefix+key)
	return nil
}

// Held reports whether key is currently locked
func (m *LocalManager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires, exists := m.locks[KeyPrefix+key]
	return exists && (expires.IsZero() || m.now().Before(expires))
}

// Close clears all local locks.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]time.Time)
	return nil
}
