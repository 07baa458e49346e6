// Package cache holds positive verification verdicts for a bounded time.
// The cache is a read-through accelerator and never the authority: entries
// are not invalidated on revocation, so a revoked credential can keep
// verifying until its entry expires.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ngajidev/keygate/internal/model"
)

// DefaultTTL bounds how long a verdict may be served without consulting the
// store.
const DefaultTTL = 300 * time.Second

// ErrCorrupt reports a stored entry that cannot be decoded. Reading it
// again will not help.
var ErrCorrupt = errors.New("corrupt cache entry")

// Entry is a cached verdict.
type Entry struct {
	Valid      bool             `json:"valid"`
	Permission model.Permission `json:"permission"`
	OwnerID    int64            `json:"owner_id"`
	KeyID      *int64           `json:"key_id,omitempty"`
}

// Cache maps a credential or subject key to a verdict. Implementations are
// safe for concurrent use.
type Cache interface {
	// Get returns the entry under key. A miss is (Entry{}, false, nil).
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores e under key for ttl.
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// APIKeyKey is the cache key for an API key fingerprint.
func APIKeyKey(fingerprint string) string {
	return "apikey:" + fingerprint
}

// SubjectKey is the cache key marking a bearer token subject as known.
func SubjectKey(userID int64) string {
	return "token:" + strconv.FormatInt(userID, 10)
}
