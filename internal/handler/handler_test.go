package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ngajidev/keygate/internal/boundary"
	"github.com/ngajidev/keygate/internal/cache"
	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/server/middleware"
	"github.com/ngajidev/keygate/internal/service"
	"github.com/ngajidev/keygate/internal/store"
	"github.com/ngajidev/keygate/internal/verify"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *store.Store
	auth     *service.AuthService
	creds    *service.CredentialService
	verifier *verify.Verifier
	router   chi.Router
}

// newTestEnv wires handlers over an in-memory store with the local verifier,
// mounting the same routes and gates the servers use.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := service.NewAuthService(st, service.AuthOptions{Secret: testJWTSecret})
	creds := service.NewCredentialService(st, nil)
	v := verify.New(st, auth, cache.NewMemory(100, cache.DefaultTTL, nil), verify.Options{Logger: logger})
	local := boundary.NewInProcess(v)

	authHandler := NewAuthHandler(auth, local, middleware.NewKeyedLimiter(5, 15*time.Minute), logger)
	keysHandler := NewKeysHandler(creds, logger)
	attendanceHandler := NewAttendanceHandler(st, logger)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/verify", authHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(local, logger))
			r.Get("/auth/me", authHandler.Me)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession())
				r.Get("/keys", keysHandler.List)
				r.Post("/keys", keysHandler.Create)
				r.Delete("/keys/{keyId}", keysHandler.Revoke)
			})

			r.With(middleware.RequireCapability(verify.CapabilityRead)).Get("/attendance", attendanceHandler.List)
			r.With(middleware.RequireCapability(verify.CapabilityWrite)).Post("/attendance", attendanceHandler.Create)
		})
	})

	return &testEnv{store: st, auth: auth, creds: creds, verifier: v, router: r}
}

// seedUser creates an account and returns it with a bearer header for it.
func (e *testEnv) seedUser(t *testing.T, username string) (*model.User, string) {
	t.Helper()
	u, err := e.auth.CreateUser(context.Background(), username, testPassword)
	require.NoError(t, err)
	pair, err := e.auth.IssueTokenPair(u.ID)
	require.NoError(t, err)
	return u, "Bearer " + pair.Access
}

// seedKey creates an API key for owner and returns its Authorization header.
func (e *testEnv) seedKey(t *testing.T, owner int64, perm model.Permission) (*model.Credential, string) {
	t.Helper()
	c, err := e.creds.Create(context.Background(), service.CreateCredentialRequest{
		OwnerID: owner, Name: "test-" + string(perm), Permission: perm,
	})
	require.NoError(t, err)
	return c, "ApiKey " + c.Secret
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, authz string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rr.Code, "body = %s", rr.Body.String())
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v), "body = %s", rr.Body.String())
}

func errorReason(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	require.Equal(t, rr.Code, resp.Error.Code)
	return resp.Error.Reason
}
