package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajidev/keygate/internal/boundary"
	"github.com/ngajidev/keygate/internal/config"
	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testSettings() *config.Settings {
	s := config.Defaults()
	s.Auth.JWTSecret = "app-test-secret-with-enough-length!!"
	return &s
}

func newApp(t *testing.T, s *config.Settings, role Role) *App {
	t.Helper()
	a, err := New(context.Background(), s, role, Options{}, discard)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAuthRoleRequiresSecret(t *testing.T) {
	s := testSettings()
	s.Auth.JWTSecret = ""

	_, err := New(context.Background(), s, RoleAuth, Options{}, discard)
	require.ErrorIs(t, err, ErrMissingSecret)

	a, err := New(context.Background(), s, RoleAuth, Options{Dev: true}, discard)
	require.NoError(t, err)
	defer a.Close()

	pair, err := issue(t, a)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)
}

func TestAdminRoleNeedsNoSecret(t *testing.T) {
	s := testSettings()
	s.Auth.JWTSecret = ""
	a := newApp(t, s, RoleAdmin)

	assert.NotNil(t, a.Creds)
	assert.Nil(t, a.Core)
	assert.Nil(t, a.Verifier)

	_, err := a.AuthServer()
	assert.Error(t, err)
}

func TestDataRoleHTTPModeNeedsNoSecret(t *testing.T) {
	s := testSettings()
	s.Auth.JWTSecret = ""
	s.Verifier.Mode = string(boundary.ModeHTTP)
	a := newApp(t, s, RoleData)

	assert.Nil(t, a.Core, "remote verification builds no local core")
	assert.IsType(t, &boundary.HTTP{}, a.Verifier)
}

func TestAuthServerEndToEnd(t *testing.T) {
	a := newApp(t, testSettings(), RoleAuth)
	srv, err := a.AuthServer()
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Auth.CreateUser(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	pair, err := a.Auth.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/keys", strings.NewReader(`{"name":"ci","permission":"read_write"}`))
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"api_key"`)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDataServerWithStub(t *testing.T) {
	s := testSettings()
	s.Verifier.Mode = string(boundary.ModeStub)
	a := newApp(t, s, RoleData)
	srv, err := a.DataServer()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8081", srv.Addr())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance", nil)
	req.Header.Set("Authorization", "ApiKey api_key_123")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/attendance", strings.NewReader(`{"name":"Ann","session":"s1","status":"present"}`))
	req.Header.Set("Authorization", "ApiKey api_key_123")
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code, "stub key is read_only")

	_, err = a.AuthServer()
	assert.Error(t, err)
}

func TestSQLCacheBackend(t *testing.T) {
	s := testSettings()
	s.Cache.Backend = config.CacheSQL
	a := newApp(t, s, RoleAuth)

	ctx := context.Background()
	u, err := a.Auth.CreateUser(ctx, "bob", "correct-horse")
	require.NoError(t, err)
	cred, err := a.Creds.Create(ctx, service.CreateCredentialRequest{OwnerID: u.ID, Name: "k", Permission: model.PermissionReadOnly})
	require.NoError(t, err)

	res, err := a.Verifier.Verify(ctx, "ApiKey "+cred.Secret)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, res.Cached)

	res, err = a.Verifier.Verify(ctx, "ApiKey "+cred.Secret)
	require.NoError(t, err)
	assert.True(t, res.Cached, "second lookup is served from the cache table")

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")
}

func issue(t *testing.T, a *App) (*service.TokenPair, error) {
	t.Helper()
	u, err := a.Auth.CreateUser(context.Background(), "dev", "correct-horse")
	require.NoError(t, err)
	return a.Auth.IssueTokenPair(u.ID)
}
