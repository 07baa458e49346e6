package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ngajidev/keygate/internal/boundary"
	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/verify"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"

	principalSlotKey contextKeyAuth = "principal_slot"
)

// principalSlot lets an outer middleware observe the principal that an inner
// Authenticate attached to its own derived context.
type principalSlot struct {
	principal *Principal
}

func withPrincipalSlot(ctx context.Context, slot *principalSlot) context.Context {
	return context.WithValue(ctx, principalSlotKey, slot)
}

// Principal represents the authenticated identity making the request.
type Principal struct {
	OwnerID    int64
	Permission model.Permission
	KeyID      *int64 // nil for bearer sessions
	Scheme     string // "bearer" or "apikey"
	Cached     bool
}

// Result converts p back into a verification result for the permission gate.
func (p *Principal) Result() verify.Result {
	return verify.Result{
		Valid:      true,
		OwnerID:    p.OwnerID,
		Permission: p.Permission,
		KeyID:      p.KeyID,
		Scheme:     p.Scheme,
		Cached:     p.Cached,
	}
}

// Authenticate returns an HTTP middleware that verifies the Authorization
// header through v. Both "Bearer <token>" and "ApiKey <key>" are accepted.
//
// On success, a Principal is attached to the request context. A rejected
// credential gets 401 with the verifier's reason; a verifier that cannot
// reach a decision gets 503.
func Authenticate(v boundary.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := v.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				logger.Error("credential verification unavailable",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				WriteError(w, http.StatusServiceUnavailable, "service_unavailable",
					"Authentication service is unavailable, try again later")
				return
			}
			if !res.Valid {
				w.Header().Set("WWW-Authenticate", `Bearer, ApiKey`)
				WriteError(w, http.StatusUnauthorized, string(res.Reason), res.Reason.Message())
				return
			}

			principal := &Principal{
				OwnerID:    res.OwnerID,
				Permission: res.Permission,
				KeyID:      res.KeyID,
				Scheme:     res.Scheme,
				Cached:     res.Cached,
			}
			if slot, ok := r.Context().Value(principalSlotKey).(*principalSlot); ok {
				slot.principal = principal
			}
			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability returns an HTTP middleware that lets the request through
// only when the principal's permission grants c. It must be used after
// Authenticate in the middleware chain.
func RequireCapability(c verify.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
				return
			}
			if err := verify.Authorize(principal.Result(), c); err != nil {
				if errors.Is(err, verify.ErrInsufficientPermission) {
					WriteError(w, http.StatusForbidden, "insufficient_permission",
						"Insufficient permissions. "+capabilityLabel(c)+" access required.")
					return
				}
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession returns an HTTP middleware that only admits principals
// authenticated with a bearer session token. API keys cannot manage keys.
func RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
				return
			}
			if principal.Scheme != verify.SchemeBearer {
				WriteError(w, http.StatusForbidden, "session_required",
					"This endpoint requires a Bearer session token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func capabilityLabel(c verify.Capability) string {
	switch c {
	case verify.CapabilityRead:
		return "Read"
	case verify.CapabilityWrite:
		return "Write"
	}
	return string(c)
}

// WriteError writes the standard error envelope. Handlers share it so every
// failure carries a machine-readable reason.
func WriteError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Reason: reason, Message: message},
	})
}
