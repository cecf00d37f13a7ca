package backends

import (
	"strings"
	"sync"
	"time"
)

type cacheItem struct {
	entry     FileSystemEntry
	expiresAt time.Time
}

func (i *cacheItem) isExpired(now time.Time) bool {
	return now.After(i.expiresAt)
}

// EntryCache is a TTL cache of resolved entries keyed by remote path.
// Providers that pay a round trip per lookup use it; the facade never does.
type EntryCache struct {
	items    map[string]*cacheItem
	mu       sync.RWMutex
	ttl      time.Duration
	maxSize  int
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewEntryCache creates a cache and starts its janitor goroutine. Call Close
// to stop it.
func NewEntryCache(ttl time.Duration, maxSize int) *EntryCache {
	c := &EntryCache{
		items:    make(map[string]*cacheItem),
		ttl:      ttl,
		maxSize:  maxSize,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	go c.cleanupExpiredEntries()

	return c
}

// Get returns a live entry for path
func (c *EntryCache) Get(path string) (FileSystemEntry, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[path]
	if !exists || item.isExpired(c.now()) {
		return nil, false
	}
	return item.entry, true
}

// Set stores entry under its path
func (c *EntryCache) Set(entry FileSystemEntry) {
	if c == nil || entry == nil || c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[entry.Path()]; !exists && len(c.items) >= c.maxSize {
		c.evictOneEntry()
	}

	c.items[entry.Path()] = &cacheItem{
		entry:     entry,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes path and everything below it
func (c *EntryCache) Invalidate(path string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := strings.TrimSuffix(path, "/") + "/"
	for p := range c.items {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(c.items, p)
		}
	}
}

// Len returns the number of cached entries, expired ones included
func (c *EntryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor goroutine and drops all entries
func (c *EntryCache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})

	c.mu.Lock()
	c.items = make(map[string]*cacheItem)
	c.mu.Unlock()
}

// evictOneEntry drops an expired entry if there is one, otherwise any entry.
// Caller must hold the lock.
func (c *EntryCache) evictOneEntry() {
	now := c.now()
	for p, item := range c.items {
		if item.isExpired(now) {
			delete(c.items, p)
			return
		}
	}
	for p := range c.items {
		delete(c.items, p)
		return
	}
}

func (c *EntryCache) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

func (c *EntryCache) performCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for p, item := range c.items {
		if item.isExpired(now) {
			delete(c.items, p)
		}
	}
}
