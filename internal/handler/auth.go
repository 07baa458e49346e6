package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ngajidev/keygate/internal/boundary"
	"github.com/ngajidev/keygate/internal/server/middleware"
	"github.com/ngajidev/keygate/internal/service"
)

// AuthHandler serves session issuance and credential verification.
type AuthHandler struct {
	auth     *service.AuthService
	verifier boundary.Verifier
	limiter  *middleware.KeyedLimiter
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. limiter bounds refresh attempts
// per token; verifier answers the verification endpoint.
func NewAuthHandler(auth *service.AuthService, verifier boundary.Verifier, limiter *middleware.KeyedLimiter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		verifier: verifier,
		limiter:  limiter,
		logger:   logger,
	}
}

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user and returns an access/refresh token pair.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
			return
		}
		writeServiceError(w, h.logger, err, "login")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh exchanges a refresh token for a new pair. Attempts are counted per
// token prefix before the token is parsed, so a flood of forged tokens is
// cut off without any signature work.
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Refresh token is required")
		return
	}

	if !h.limiter.Allow(w, r, service.RefreshLimitKey(req.Refresh)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited",
			"Too many refresh attempts, try again later")
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
			return
		}
		writeServiceError(w, h.logger, err, "refresh")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Verify checks the caller-supplied Authorization header and answers with
// the verification result: 200 when valid, 401 when not. Other services use
// this endpoint through the HTTP boundary adapter.
// POST /api/v1/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeServiceError(w, h.logger, err, "verify")
		return
	}
	status := http.StatusOK
	if !res.Valid {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, res)
}

// Me returns the authenticated principal as a verification result.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, p.Result())
}
