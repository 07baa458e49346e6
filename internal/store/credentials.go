package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ngajidev/keygate/internal/model"
)

// CreateCredential inserts a credential record. Fingerprint must already be
// set; the plaintext secret is never written. A fingerprint collision fails
// with ErrConflict rather than overwriting the existing record. A zero
// CreatedAt is set to the current time.
func (s *Store) CreateCredential(ctx context.Context, c *model.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Revoked = false

	const q = `INSERT INTO credentials
		(owner_id, name, fingerprint, permission, revoked, expires_at, created_at)
		VALUES
		(:owner_id, :name, :fingerprint, :permission, :revoked, :expires_at, :created_at)`

	id, err := s.insert(ctx, q, c)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential fingerprint: %w", ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	c.ID = id
	return nil
}

// GetCredential returns a credential by ID.
func (s *Store) GetCredential(ctx context.Context, id int64) (*model.Credential, error) {
	var c model.Credential
	q := s.db.Rebind("SELECT * FROM credentials WHERE id = ?")
	if err := s.db.GetContext(ctx, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

// GetCredentialByFingerprint looks up a credential by the SHA-256 fingerprint
// of its secret.
func (s *Store) GetCredentialByFingerprint(ctx context.Context, fingerprint string) (*model.Credential, error) {
	var c model.Credential
	q := s.db.Rebind("SELECT * FROM credentials WHERE fingerprint = ?")
	if err := s.db.GetContext(ctx, &c, q, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential by fingerprint: %w", err)
	}
	return &c, nil
}

// ListActiveCredentials returns the non-revoked credentials of owner, newest
// first. Expired credentials are included; expiry is judged at verification.
func (s *Store) ListActiveCredentials(ctx context.Context, ownerID int64) ([]model.Credential, error) {
	creds := []model.Credential{}
	q := s.db.Rebind("SELECT * FROM credentials WHERE owner_id = ? AND revoked = ? ORDER BY created_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &creds, q, ownerID, false); err != nil {
		return nil, fmt.Errorf("list active credentials: %w", err)
	}
	return creds, nil
}

// ListCredentials returns every credential, revoked ones included. An
// ownerID of zero lists all owners.
func (s *Store) ListCredentials(ctx context.Context, ownerID int64) ([]model.Credential, error) {
	creds := []model.Credential{}
	var err error
	if ownerID == 0 {
		err = s.db.SelectContext(ctx, &creds, "SELECT * FROM credentials ORDER BY created_at DESC, id DESC")
	} else {
		q := s.db.Rebind("SELECT * FROM credentials WHERE owner_id = ? ORDER BY created_at DESC, id DESC")
		err = s.db.SelectContext(ctx, &creds, q, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// RevokeCredential marks the credential revoked when it exists and belongs to
// ownerID. It reports false, without error, for unknown or foreign
// credentials. Revoking an already revoked credential reports true.
func (s *Store) RevokeCredential(ctx context.Context, id, ownerID int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var owner int64
	if err := tx.GetContext(ctx, &owner, tx.Rebind("SELECT owner_id FROM credentials WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load credential: %w", err)
	}
	if owner != ownerID {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE credentials SET revoked = ? WHERE id = ?"), true, id); err != nil {
		return false, fmt.Errorf("revoke credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit revoke: %w", err)
	}
	return true, nil
}
