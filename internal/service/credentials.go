package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/secret"
)

// MaxCredentialNameLength bounds a credential's display name.
const MaxCredentialNameLength = 100

// CredentialStore is the key material storage used by CredentialService.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *model.Credential) error
	GetCredentialByFingerprint(ctx context.Context, fingerprint string) (*model.Credential, error)
	ListActiveCredentials(ctx context.Context, ownerID int64) ([]model.Credential, error)
	ListCredentials(ctx context.Context, ownerID int64) ([]model.Credential, error)
	RevokeCredential(ctx context.Context, id, ownerID int64) (bool, error)
}

// CreateCredentialRequest describes a new API key.
type CreateCredentialRequest struct {
	OwnerID    int64
	Name       string
	Permission model.Permission
	// ExpiresInDays is relative to creation. Nil or zero means the key never
	// expires; negative values yield an already expired key.
	ExpiresInDays *int
}

// CredentialService manages the API key lifecycle.
type CredentialService struct {
	store CredentialStore
	now   func() time.Time
}

// NewCredentialService returns a service over creds. A nil now uses time.Now.
func NewCredentialService(creds CredentialStore, now func() time.Time) *CredentialService {
	if now == nil {
		now = time.Now
	}
	return &CredentialService{store: creds, now: now}
}

// Create generates a secret, persists only its fingerprint and returns the
// credential with Secret set. The secret cannot be recovered afterwards.
func (s *CredentialService) Create(ctx context.Context, req CreateCredentialRequest) (*model.Credential, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(name) > MaxCredentialNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrValidation, MaxCredentialNameLength)
	}
	if req.OwnerID <= 0 {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	perm := req.Permission
	if perm == "" {
		perm = model.PermissionReadOnly
	}
	if !perm.Valid() {
		return nil, fmt.Errorf("%w: permission must be one of %v", ErrValidation, model.Permissions)
	}

	sec, err := secret.Generate()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &model.Credential{
		OwnerID:     req.OwnerID,
		Name:        name,
		Fingerprint: secret.Fingerprint(sec),
		Permission:  perm,
		CreatedAt:   now,
	}
	if req.ExpiresInDays != nil && *req.ExpiresInDays != 0 {
		exp := now.AddDate(0, 0, *req.ExpiresInDays)
		c.ExpiresAt = &exp
	}

	if err := s.store.CreateCredential(ctx, c); err != nil {
		return nil, err
	}
	c.Secret = sec
	return c, nil
}

// Revoke revokes credential id on behalf of ownerID. It reports false when
// the credential does not exist or belongs to another owner; callers cannot
// tell those two cases apart.
func (s *CredentialService) Revoke(ctx context.Context, id, ownerID int64) (bool, error) {
	return s.store.RevokeCredential(ctx, id, ownerID)
}

// ListActive returns the owner's non-revoked credentials.
func (s *CredentialService) ListActive(ctx context.Context, ownerID int64) ([]model.Credential, error) {
	return s.store.ListActiveCredentials(ctx, ownerID)
}

// List returns every credential of ownerID, or of all owners when ownerID is
// zero.
func (s *CredentialService) List(ctx context.Context, ownerID int64) ([]model.Credential, error) {
	return s.store.ListCredentials(ctx, ownerID)
}

// LookupByFingerprint returns the credential with the given fingerprint or
// an error matching store.ErrNotFound.
func (s *CredentialService) LookupByFingerprint(ctx context.Context, fingerprint string) (*model.Credential, error) {
	return s.store.GetCredentialByFingerprint(ctx, fingerprint)
}
