package store

import (
	"context"
	"fmt"
	"strings"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{serial}},
		username {{key}} NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active {{bool}} NOT NULL DEFAULT {{true}},
		created_at {{time}} NOT NULL DEFAULT {{now}}
	)`,

	`CREATE TABLE IF NOT EXISTS credentials (
		id {{serial}},
		owner_id {{bigint}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name {{key}} NOT NULL,
		fingerprint {{key}} NOT NULL UNIQUE,
		permission {{key}} NOT NULL DEFAULT 'read_only',
		revoked {{bool}} NOT NULL DEFAULT {{false}},
		expires_at {{time}} NULL,
		created_at {{time}} NOT NULL DEFAULT {{now}}
	)`,

	`CREATE INDEX {{ifnotexists}}idx_credentials_owner ON credentials(owner_id)`,

	// Shared verification cache. expires_at is unix nanoseconds so expiry
	// comparisons never depend on driver time handling.
	`CREATE TABLE IF NOT EXISTS verification_cache (
		cache_key {{key}} NOT NULL PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at {{bigint}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attendance (
		id {{serial}},
		name {{key}} NOT NULL,
		session {{key}} NOT NULL DEFAULT '',
		status {{key}} NOT NULL DEFAULT 'present',
		recorded_by {{bigint}} NOT NULL,
		created_at {{time}} NOT NULL DEFAULT {{now}}
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		stmt := s.dialect.ddl.Replace(m)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; an existing index is
			// a no-op for idempotent migrations.
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "duplicate key name") || strings.Contains(msg, "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
