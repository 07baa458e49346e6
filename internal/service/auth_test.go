package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajidev/keygate/internal/store"
)

const testSecret = "test-secret-key-for-jwt"

func newTestAuth(t *testing.T, now func() time.Time) (*AuthService, *store.Store) {
	t.Helper()
	s, err := store.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	auth := NewAuthService(s, AuthOptions{Secret: testSecret, Now: now})
	return auth, s
}

func TestLoginAndSubject(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	ctx := context.Background()

	u, err := auth.CreateUser(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2"))

	pair, err := auth.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int(DefaultAccessTTL.Seconds()), pair.ExpiresIn)

	sub, err := auth.Subject(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sub)

	claims, err := auth.ParseAccessToken(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.TokenID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	ctx := context.Background()
	_, err := auth.CreateUser(ctx, "alice", "correct horse")
	require.NoError(t, err)

	_, err = auth.Login(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateUserValidation(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	ctx := context.Background()

	_, err := auth.CreateUser(ctx, "  ", "long enough")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = auth.CreateUser(ctx, "bob", "short")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = auth.CreateUser(ctx, "bob", "long enough")
	require.NoError(t, err)
	_, err = auth.CreateUser(ctx, "bob", "long enough")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	ctx := context.Background()
	u, err := auth.CreateUser(ctx, "alice", "correct horse")
	require.NoError(t, err)

	pair, err := auth.IssueTokenPair(u.ID)
	require.NoError(t, err)

	_, err = auth.Subject(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token used as access token")

	_, err = auth.Refresh(ctx, pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token used as refresh token")

	next, err := auth.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Refresh, next.Refresh)
	sub, err := auth.Subject(next.Access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sub)
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	auth, _ := newTestAuth(t, clock)
	ctx := context.Background()
	u, err := auth.CreateUser(ctx, "alice", "correct horse")
	require.NoError(t, err)

	pair, err := auth.IssueTokenPair(u.ID)
	require.NoError(t, err)

	now = now.Add(DefaultAccessTTL + time.Second)
	_, err = auth.Subject(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token past its lifetime")

	_, err = auth.Refresh(ctx, pair.Refresh)
	require.NoError(t, err, "refresh token outlives the access token")

	now = now.Add(DefaultRefreshTTL)
	_, err = auth.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsForeignSignatures(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	other := NewAuthService(nil, AuthOptions{Secret: "a-different-secret"})

	pair, err := other.IssueTokenPair(1)
	require.NoError(t, err)
	_, err = auth.Subject(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Subject("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// alg=none tokens are refused.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, TokenType: TokenTypeAccess})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Subject(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRejectsRemovedUser(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	pair, err := auth.IssueTokenPair(424242)
	require.NoError(t, err)

	_, err = auth.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshLimitKey(t *testing.T) {
	auth, _ := newTestAuth(t, nil)
	a, err := auth.IssueTokenPair(1)
	require.NoError(t, err)
	b, err := auth.IssueTokenPair(1)
	require.NoError(t, err)

	ka, kb := RefreshLimitKey(a.Refresh), RefreshLimitKey(b.Refresh)
	assert.Len(t, ka, 32)
	assert.NotEqual(t, ka, kb, "distinct tokens land in distinct buckets")
	assert.Equal(t, ka, RefreshLimitKey(a.Refresh))

	assert.Equal(t, "short", RefreshLimitKey("short"))
	assert.Equal(t, strings.Repeat("x", 32), RefreshLimitKey(strings.Repeat("x", 40)))
}
