package results

import (
	"context"
	"sync"
)

// Cache stores finished reports keyed by session id.
type Cache interface {
	Get(ctx context.Context, sessionID string) (Report, bool, error)
	Put(ctx context.Context, sessionID string, report Report) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryCache keeps reports in memory and is safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{reports: make(map[string]Report)}
}

// Get returns the cached report for sessionID.
func (c *MemoryCache) Get(ctx context.Context, sessionID string) (Report, bool, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.reports[sessionID]
	return r, ok, nil
}

// Put stores a report under sessionID; the first stored report wins.
func (c *MemoryCache) Put(ctx context.Context, sessionID string, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.reports[sessionID]; !ok {
		c.reports[sessionID] = report
	}
	return nil
}

// Delete drops the report for sessionID.
func (c *MemoryCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, sessionID)
	return nil
}
