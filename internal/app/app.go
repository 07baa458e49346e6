// Package app assembles keygate's components from Settings. Both the auth
// and the data service, and the admin CLI commands, start from New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/ngajidev/keygate/internal/boundary"
	"github.com/ngajidev/keygate/internal/cache"
	"github.com/ngajidev/keygate/internal/config"
	"github.com/ngajidev/keygate/internal/secret"
	"github.com/ngajidev/keygate/internal/server"
	"github.com/ngajidev/keygate/internal/server/middleware"
	"github.com/ngajidev/keygate/internal/service"
	"github.com/ngajidev/keygate/internal/store"
	"github.com/ngajidev/keygate/internal/verify"
)

// Role says what the process is about to run; it decides which
// components must be configured.
type Role int

const (
	// RoleAdmin needs only the store and the account and key services.
	RoleAdmin Role = iota
	// RoleAuth runs the auth service.
	RoleAuth
	// RoleData runs the data service.
	RoleData
)

// MinSecretLength is the shortest JWT secret accepted without a warning.
const MinSecretLength = 32

// ErrMissingSecret is returned when a role that signs or decodes tokens
// has no auth.jwt_secret.
var ErrMissingSecret = errors.New("auth.jwt_secret is required (set it in keygate.yaml or KEYGATE_AUTH_JWT_SECRET)")

// Options adjust New.
type Options struct {
	// Dev substitutes a random JWT secret when none is configured.
	Dev bool
}

// App holds the wired components. Fields a role does not need are nil.
type App struct {
	Settings *config.Settings
	Store    *store.Store
	Auth     *service.AuthService
	Creds    *service.CredentialService
	// Core is the in-process verifier; nil when the data service delegates
	// to a remote or stub verifier.
	Core     *verify.Verifier
	Verifier boundary.Verifier

	role   Role
	logger *slog.Logger

	stopJanitor context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New opens the store and builds the components role needs.
func New(ctx context.Context, s *config.Settings, role Role, opts Options, logger *slog.Logger) (*App, error) {
	a := &App{Settings: s, role: role, logger: logger}

	st, err := store.Open(ctx, store.Options{
		Driver:  s.Store.Driver,
		DSN:     s.Store.DSN,
		DataDir: s.Store.DataDir,
	})
	if err != nil {
		return nil, err
	}
	a.Store = st

	if err := a.wire(opts); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(opts Options) error {
	s := a.Settings

	jwtSecret := s.Auth.JWTSecret
	needsSecret := a.role == RoleAuth || (a.role == RoleData && boundary.Mode(s.Verifier.Mode) == boundary.ModeLocal)
	if needsSecret && jwtSecret == "" {
		if !opts.Dev {
			return ErrMissingSecret
		}
		generated, err := secret.Generate()
		if err != nil {
			return err
		}
		jwtSecret = generated
		a.logger.Warn("no auth.jwt_secret configured, using a random secret; tokens will not survive a restart")
	} else if needsSecret && len(jwtSecret) < MinSecretLength {
		a.logger.Warn("auth.jwt_secret is short", "length", len(jwtSecret), "recommended", MinSecretLength)
	}

	a.Auth = service.NewAuthService(a.Store, service.AuthOptions{
		Secret:     jwtSecret,
		AccessTTL:  s.Auth.AccessTTL,
		RefreshTTL: s.Auth.RefreshTTL,
		Issuer:     s.Auth.Issuer,
	})
	a.Creds = service.NewCredentialService(a.Store, nil)

	if a.role == RoleAdmin {
		return nil
	}

	mode := boundary.Mode(s.Verifier.Mode)
	if a.role == RoleAuth || mode == boundary.ModeLocal || mode == "" {
		a.Core = verify.New(a.Store, a.Auth, a.newCache(), verify.Options{
			TTL:    s.Cache.TTL,
			Logger: a.logger,
		})
	}

	if a.role == RoleAuth {
		// The auth service verifies in process whatever verifier.mode says.
		a.Verifier = boundary.NewInProcess(a.Core)
		return nil
	}

	v, err := boundary.New(boundary.Config{
		Mode:     mode,
		URL:      s.Verifier.URL,
		Timeout:  s.Verifier.Timeout,
		Attempts: s.Verifier.Attempts,
		StubFile: s.Verifier.StubFile,
	}, a.Core, a.logger)
	if err != nil {
		return err
	}
	a.Verifier = v
	return nil
}

// newCache builds the cache.backend selected in settings. The SQL backend
// starts a janitor that Close stops.
func (a *App) newCache() cache.Cache {
	cs := a.Settings.Cache
	if cs.Backend != config.CacheSQL {
		return cache.NewMemory(cs.Size, cs.TTL, nil)
	}

	c := cache.NewSQL(a.Store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	a.stopJanitor = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		c.Janitor(ctx, cs.PurgeInterval, a.logger)
	}()
	return c
}

// AuthServer builds the auth service HTTP server.
func (a *App) AuthServer() (*server.Server, error) {
	if a.role != RoleAuth {
		return nil, fmt.Errorf("app was not built for the auth service")
	}
	trusted, err := middleware.ParsePrefixes(a.Settings.Auth.TrustedNetworks)
	if err != nil {
		return nil, fmt.Errorf("auth.trusted_networks: %w", err)
	}
	if len(trusted) == 0 {
		trusted = []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	}

	ss := a.Settings.Server
	return server.NewAuthServer(server.Config{
		Host:              ss.Host,
		Port:              ss.Port,
		ShutdownTimeout:   ss.ShutdownTimeout,
		CORSOrigins:       ss.CORSOrigins,
		RequestsPerMinute: ss.RequestsPerMinute,
	}, server.AuthDeps{
		Store:           a.Store,
		Auth:            a.Auth,
		Creds:           a.Creds,
		Verifier:        a.Verifier,
		RefreshLimiter:  middleware.NewKeyedLimiter(a.Settings.Auth.RefreshMaxAttempts, a.Settings.Auth.RefreshWindow),
		TrustedNetworks: trusted,
	}, a.logger), nil
}

// DataServer builds the data service HTTP server. It shares server.* limits
// with the auth service but listens on data.host and data.port.
func (a *App) DataServer() (*server.Server, error) {
	if a.role != RoleData {
		return nil, fmt.Errorf("app was not built for the data service")
	}
	ss := a.Settings.Server
	return server.NewDataServer(server.Config{
		Host:              a.Settings.Data.Host,
		Port:              a.Settings.Data.Port,
		ShutdownTimeout:   ss.ShutdownTimeout,
		CORSOrigins:       ss.CORSOrigins,
		RequestsPerMinute: ss.RequestsPerMinute,
	}, server.DataDeps{
		Store:    a.Store,
		Verifier: a.Verifier,
	}, a.logger), nil
}

// Close stops background work and closes the store. It is safe to call
// more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.stopJanitor != nil {
			a.stopJanitor()
		}
		a.wg.Wait()
		err = a.Store.Close()
	})
	return err
}
