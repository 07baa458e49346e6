package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ngajidev/keygate/internal/retry"
	"github.com/ngajidev/keygate/internal/verify"
)

// VerifyPath is where the auth service exposes verification.
const VerifyPath = "/api/v1/auth/verify"

// HTTPOptions configures an HTTP verifier client.
type HTTPOptions struct {
	// URL is the auth service base URL, e.g. http://127.0.0.1:8080.
	URL    string
	Client *http.Client
	Retry  retry.Policy
	Logger *slog.Logger
}

// HTTP asks a remote auth service to verify each header.
type HTTP struct {
	endpoint string
	client   *http.Client
	retry    retry.Policy
	logger   *slog.Logger
}

func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.URL == "" {
		return nil, errors.New("verifier.url is required for verifier mode http")
	}
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid verifier.url %q", opts.URL)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTP{
		endpoint: strings.TrimSuffix(opts.URL, "/") + VerifyPath,
		client:   opts.Client,
		retry:    opts.Retry,
		logger:   opts.Logger,
	}, nil
}

func (h *HTTP) Verify(ctx context.Context, header string) (verify.Result, error) {
	policy := h.retry
	policy.OnRetry = func(err error, wait time.Duration) {
		h.logger.Warn("verifier call failed, retrying", "error", err, "wait", wait)
	}

	res, err := retry.DoValue(ctx, policy, func(ctx context.Context) (verify.Result, error) {
		return h.call(ctx, header)
	})
	if err != nil {
		return verify.Result{}, fmt.Errorf("%w: %v", verify.ErrUnavailable, err)
	}
	return res, nil
}

// call performs one round trip. Definitive answers (200 and 401) are
// returned as results; 5xx and transport errors are retried; any other
// status is a permanent failure.
func (h *HTTP) call(ctx context.Context, header string) (verify.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, nil)
	if err != nil {
		return verify.Result{}, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return verify.Result{}, fmt.Errorf("POST %s: %w", VerifyPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return verify.Result{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnauthorized:
		var res verify.Result
		if err := json.Unmarshal(body, &res); err != nil {
			return verify.Result{}, retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if res.Valid != (resp.StatusCode == http.StatusOK) {
			return verify.Result{}, retry.Permanent(fmt.Errorf("inconsistent response: HTTP %d with valid=%t", resp.StatusCode, res.Valid))
		}
		if !res.Valid && res.Reason == "" {
			res.Reason = verify.ReasonInvalidOrRevoked
		}
		return res, nil

	case resp.StatusCode >= 500:
		return verify.Result{}, fmt.Errorf("POST %s: HTTP %d", VerifyPath, resp.StatusCode)

	default:
		return verify.Result{}, retry.Permanent(fmt.Errorf("POST %s: HTTP %d", VerifyPath, resp.StatusCode))
	}
}
