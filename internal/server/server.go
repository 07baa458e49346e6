package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ngajidev/keygate/internal/boundary"
	"github.com/ngajidev/keygate/internal/handler"
	"github.com/ngajidev/keygate/internal/openapi"
	"github.com/ngajidev/keygate/internal/server/middleware"
	"github.com/ngajidev/keygate/internal/service"
	"github.com/ngajidev/keygate/internal/verify"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// RequestsPerMinute limits each client IP. Zero disables the limit.
	RequestsPerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		RequestsPerMinute: 600,
	}
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuthDeps are the collaborators of the auth service.
type AuthDeps struct {
	Store Pinger
	Auth  *service.AuthService
	Creds *service.CredentialService
	// Verifier answers /auth/verify and authenticates the key endpoints.
	// The auth service always verifies in process.
	Verifier        boundary.Verifier
	RefreshLimiter  *middleware.KeyedLimiter
	TrustedNetworks []netip.Prefix
}

// DataStore is the storage the data service needs.
type DataStore interface {
	Pinger
	handler.AttendanceStore
}

// DataDeps are the collaborators of the data service.
type DataDeps struct {
	Store DataStore
	// Verifier is the service boundary adapter selected by configuration.
	Verifier boundary.Verifier
}

// Server is an HTTP server for one of the two keygate services. It owns the
// Chi router and the readiness checks.
type Server struct {
	name       string
	cfg        Config
	router     chi.Router
	store      Pinger
	httpServer *http.Server
	logger     *slog.Logger
	// limit is the shared per-IP limiter, or a pass-through when disabled.
	limit func(http.Handler) http.Handler
}

// NewAuthServer wires the auth service: login, refresh, verification and
// API key management.
func NewAuthServer(cfg Config, deps AuthDeps, logger *slog.Logger) *Server {
	s := &Server{name: "auth", cfg: cfg, store: deps.Store, logger: logger}
	r := s.baseRouter(openapi.GenerateAuthSpec)

	authHandler := handler.NewAuthHandler(deps.Auth, deps.Verifier, deps.RefreshLimiter, logger)
	keysHandler := handler.NewKeysHandler(deps.Creds, logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Data services call verify once per request from a single address,
		// so it sits behind TrustedNetworks instead of the per-IP limit.
		r.With(middleware.TrustedNetworks(deps.TrustedNetworks)).Post("/auth/verify", authHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(s.limit)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(deps.Verifier, logger))
				r.Get("/auth/me", authHandler.Me)

				// Key management requires a session, not another key.
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireSession())
					r.Get("/keys", keysHandler.List)
					r.Post("/keys", keysHandler.Create)
					r.Delete("/keys/{keyId}", keysHandler.Revoke)
				})
			})
		})
	})

	s.router = r
	return s
}

// NewDataServer wires the data service. Every API request is authenticated
// through deps.Verifier and gated by capability.
func NewDataServer(cfg Config, deps DataDeps, logger *slog.Logger) *Server {
	s := &Server{name: "data", cfg: cfg, store: deps.Store, logger: logger}
	r := s.baseRouter(openapi.GenerateDataSpec)

	attendance := handler.NewAttendanceHandler(deps.Store, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limit)
		r.Use(middleware.Authenticate(deps.Verifier, logger))

		r.With(middleware.RequireCapability(verify.CapabilityRead)).Get("/attendance", attendance.List)
		r.With(middleware.RequireCapability(verify.CapabilityWrite)).Post("/attendance", attendance.Create)
	})

	s.router = r
	return s
}

func (s *Server) baseRouter(spec func(baseURL string) *openapi3.T) chi.Router {
	r := chi.NewRouter()

	s.limit = func(next http.Handler) http.Handler { return next }
	if s.cfg.RequestsPerMinute > 0 {
		s.limit = middleware.RateLimit(s.cfg.RequestsPerMinute)
	}

	// --- Global middleware ---
	r.Use(middleware.PeerAddr)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks and API description (no auth required) ---
	r.Group(func(r chi.Router) {
		r.Use(s.limit)
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)
		r.Get("/openapi.json", handler.NewOpenAPIHandler(spec).ServeSpec)
	})

	return r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "service", s.name, "error", err)
		checks["store"] = "unreachable"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "service", s.name, "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...", "service", s.name)
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped", "service", s.name)
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
