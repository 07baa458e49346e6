package verify

import (
	"encoding/json"
	"errors"

	"github.com/ngajidev/keygate/internal/model"
)

// Reason is a stable, machine-readable cause for a rejected credential.
type Reason string

const (
	ReasonFormat            Reason = "format_error"
	ReasonInvalidOrRevoked  Reason = "invalid_or_revoked"
	ReasonExpired           Reason = "expired"
	ReasonUserNotFound      Reason = "user_not_found"
	ReasonUnsupportedScheme Reason = "unsupported_scheme"
	ReasonInvalidToken      Reason = "invalid_token"
)

// Message returns a short human-readable description of r.
func (r Reason) Message() string {
	switch r {
	case ReasonFormat:
		return "Authorization header must be '<scheme> <credential>'"
	case ReasonInvalidOrRevoked:
		return "API key is invalid or has been revoked"
	case ReasonExpired:
		return "API key has expired"
	case ReasonUserNotFound:
		return "token subject does not exist"
	case ReasonUnsupportedScheme:
		return "unsupported authorization scheme; use Bearer or ApiKey"
	case ReasonInvalidToken:
		return "token is invalid or expired"
	}
	return "invalid credential"
}

// Scheme names as they appear in the Authorization header, lowercased.
const (
	SchemeBearer = "bearer"
	SchemeAPIKey = "apikey"
)

// ErrUnavailable wraps infrastructure failures (store, cache, remote
// verifier). It is never used for a credential that was judged invalid.
var ErrUnavailable = errors.New("verification unavailable")

// Result is the outcome of verifying one Authorization header. When Valid is
// false only Reason is meaningful.
type Result struct {
	Valid      bool
	OwnerID    int64
	Permission model.Permission
	KeyID      *int64
	Scheme     string
	Cached     bool
	Reason     Reason
}

// Invalid builds a rejected result.
func Invalid(reason Reason) Result {
	return Result{Reason: reason}
}

type validJSON struct {
	Valid      bool             `json:"valid"`
	Owner      int64            `json:"owner"`
	Permission model.Permission `json:"permission"`
	KeyID      *int64           `json:"key_id,omitempty"`
	Scheme     string           `json:"scheme,omitempty"`
	Cached     bool             `json:"cached"`
}

type invalidJSON struct {
	Valid bool   `json:"valid"`
	Error Reason `json:"error"`
}

// MarshalJSON renders {valid:true, owner, permission, key_id?, cached} or
// {valid:false, error}.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return json.Marshal(invalidJSON{Valid: false, Error: r.Reason})
	}
	return json.Marshal(validJSON{
		Valid:      true,
		Owner:      r.OwnerID,
		Permission: r.Permission,
		KeyID:      r.KeyID,
		Scheme:     r.Scheme,
		Cached:     r.Cached,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var probe struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if !probe.Valid {
		var inv invalidJSON
		if err := json.Unmarshal(data, &inv); err != nil {
			return err
		}
		*r = Invalid(inv.Error)
		return nil
	}
	var v validJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Result{
		Valid:      true,
		OwnerID:    v.Owner,
		Permission: v.Permission,
		KeyID:      v.KeyID,
		Scheme:     v.Scheme,
		Cached:     v.Cached,
	}
	return nil
}
