// Package boundary lets a service obtain verification decisions without
// knowing where the verifier runs. Every implementation honours the same
// contract as verify.Verifier.Verify; only the HTTP transport adds network
// failures, reported as verify.ErrUnavailable.
package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngajidev/keygate/internal/retry"
	"github.com/ngajidev/keygate/internal/verify"
)

// Verifier turns a raw Authorization header into a verification result.
type Verifier interface {
	Verify(ctx context.Context, header string) (verify.Result, error)
}

// Mode selects the Verifier implementation.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeHTTP  Mode = "http"
	ModeStub  Mode = "stub"
)

// Config is the verifier.* configuration section.
type Config struct {
	Mode     Mode
	URL      string
	Timeout  time.Duration
	Attempts int
	StubFile string
}

// InProcess calls a verifier living in the same process.
type InProcess struct {
	core *verify.Verifier
}

func NewInProcess(core *verify.Verifier) *InProcess {
	return &InProcess{core: core}
}

func (p *InProcess) Verify(ctx context.Context, header string) (verify.Result, error) {
	return p.core.Verify(ctx, header)
}

// New builds the Verifier selected by cfg.Mode. local is required for
// ModeLocal and ignored otherwise.
func New(cfg Config, local *verify.Verifier, logger *slog.Logger) (Verifier, error) {
	switch cfg.Mode {
	case ModeLocal, "":
		if local == nil {
			return nil, fmt.Errorf("verifier mode %q needs a local verifier", ModeLocal)
		}
		return NewInProcess(local), nil

	case ModeHTTP:
		policy := retry.Default()
		if cfg.Attempts > 0 {
			policy.Attempts = cfg.Attempts
		}
		if cfg.Timeout > 0 {
			policy.Timeout = cfg.Timeout
		}
		return NewHTTP(HTTPOptions{URL: cfg.URL, Retry: policy, Logger: logger})

	case ModeStub:
		if cfg.StubFile == "" {
			logger.Warn("using built-in development credentials; do not run in production")
			return DefaultStub(), nil
		}
		return LoadStub(cfg.StubFile)

	default:
		return nil, fmt.Errorf("unknown verifier mode %q (want local, http or stub)", cfg.Mode)
	}
}
