package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/secret"
	"github.com/ngajidev/keygate/internal/store"
)

func intPtr(v int) *int { return &v }

func newTestCredentials(t *testing.T) (*CredentialService, *store.Store, *model.User) {
	t.Helper()
	s, err := store.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	u := &model.User{Username: "owner", PasswordHash: "x", IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return NewCredentialService(s, nil), s, u
}

func TestCreateCredentialReturnsSecretOnce(t *testing.T) {
	svc, s, owner := newTestCredentials(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "ci", Permission: model.PermissionReadOnly})
	require.NoError(t, err)
	assert.Len(t, c.Secret, 64)
	assert.Equal(t, secret.Fingerprint(c.Secret), c.Fingerprint)
	assert.Nil(t, c.ExpiresAt)

	stored, err := s.GetCredential(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Secret)
	assert.Equal(t, c.Fingerprint, stored.Fingerprint)

	found, err := svc.LookupByFingerprint(ctx, secret.Fingerprint(c.Secret))
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
}

func TestCreateCredentialValidation(t *testing.T) {
	svc, _, owner := newTestCredentials(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "x", Permission: "superuser"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	long := make([]byte, MaxCredentialNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: string(long)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateCredentialRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	c, err := svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "default"})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionReadOnly, c.Permission)
}

func TestCreateCredentialExpiry(t *testing.T) {
	svc, _, owner := newTestCredentials(t)
	ctx := context.Background()
	now := time.Now()

	c, err := svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "week", ExpiresInDays: intPtr(7)})
	require.NoError(t, err)
	require.NotNil(t, c.ExpiresAt)
	assert.WithinDuration(t, now.AddDate(0, 0, 7), *c.ExpiresAt, time.Minute)

	c, err = svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "zero", ExpiresInDays: intPtr(0)})
	require.NoError(t, err)
	assert.Nil(t, c.ExpiresAt)

	c, err = svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "past", ExpiresInDays: intPtr(-1)})
	require.NoError(t, err)
	require.NotNil(t, c.ExpiresAt)
	assert.True(t, c.Expired(now))
}

func TestCreateCredentialUsesServiceClock(t *testing.T) {
	_, s, owner := newTestCredentials(t)
	ctx := context.Background()
	fixed := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewCredentialService(s, func() time.Time { return fixed })

	c, err := svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "week", ExpiresInDays: intPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, fixed, c.CreatedAt)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, 7*24*time.Hour, c.ExpiresAt.Sub(c.CreatedAt))

	stored, err := s.GetCredential(ctx, c.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, fixed, stored.CreatedAt, time.Second)
}

func TestRevokeAndListActive(t *testing.T) {
	svc, s, owner := newTestCredentials(t)
	ctx := context.Background()

	other := &model.User{Username: "other", PasswordHash: "x", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, other))

	a, err := svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateCredentialRequest{OwnerID: owner.ID, Name: "b", Permission: model.PermissionWriteOnly})
	require.NoError(t, err)

	ok, err := svc.Revoke(ctx, a.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := svc.ListActive(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	ok, err = svc.Revoke(ctx, a.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = svc.ListActive(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Name)

	all, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
