package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Backend is the table storage behind a SQL cache. *store.Store implements
// it.
type Backend interface {
	CacheGet(ctx context.Context, key string, now time.Time) (string, bool, error)
	CachePut(ctx context.Context, key, payload string, expiresAt time.Time) error
	CachePurge(ctx context.Context, now time.Time) (int64, error)
}

// SQL is a cache shared by every process pointed at the same database.
type SQL struct {
	backend Backend
	now     func() time.Time
}

// NewSQL wraps backend. A nil now uses time.Now.
func NewSQL(backend Backend, now func() time.Time) *SQL {
	if now == nil {
		now = time.Now
	}
	return &SQL{backend: backend, now: now}
}

func (c *SQL) Get(ctx context.Context, key string) (Entry, bool, error) {
	payload, ok, err := c.backend.CacheGet(ctx, key, c.now())
	if err != nil || !ok {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Entry{}, false, fmt.Errorf("%w %q: %v", ErrCorrupt, key, err)
	}
	return e, true, nil
}

func (c *SQL) Set(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.backend.CachePut(ctx, key, string(payload), c.now().Add(ttl))
}

// Janitor deletes expired rows every interval until ctx is cancelled.
func (c *SQL) Janitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.backend.CachePurge(ctx, c.now())
			if err != nil {
				logger.Warn("cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", "count", n)
			}
		}
	}
}
