package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Verification cache table
// ---------------------------------------------------------------------------

// CacheGet returns the payload stored under key if it has not expired at now.
func (s *Store) CacheGet(ctx context.Context, key string, now time.Time) (string, bool, error) {
	var payload string
	q := s.db.Rebind("SELECT payload FROM verification_cache WHERE cache_key = ? AND expires_at > ?")
	if err := s.db.GetContext(ctx, &payload, q, key, now.UnixNano()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return payload, true, nil
}

// CachePut stores payload under key until expiresAt, replacing any previous
// entry.
func (s *Store) CachePut(ctx context.Context, key, payload string, expiresAt time.Time) error {
	q := s.db.Rebind(s.dialect.upsertCache)
	if _, err := s.db.ExecContext(ctx, q, key, payload, expiresAt.UnixNano()); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// CachePurge deletes entries that expired at or before now and returns how
// many were removed.
func (s *Store) CachePurge(ctx context.Context, now time.Time) (int64, error) {
	q := s.db.Rebind("DELETE FROM verification_cache WHERE expires_at <= ?")
	result, err := s.db.ExecContext(ctx, q, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache purge rows affected: %w", err)
	}
	return n, nil
}
