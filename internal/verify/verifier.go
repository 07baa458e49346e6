// Package verify decides whether an Authorization header carries a valid
// credential and, if so, which owner and permission it resolves to.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ngajidev/keygate/internal/cache"
	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/retry"
	"github.com/ngajidev/keygate/internal/secret"
	"github.com/ngajidev/keygate/internal/store"
)

// CredentialStore is the authoritative source consulted on a cache miss.
// *store.Store implements it. Lookups of unknown fingerprints must return
// an error matching store.ErrNotFound.
type CredentialStore interface {
	GetCredentialByFingerprint(ctx context.Context, fingerprint string) (*model.Credential, error)
	UserExists(ctx context.Context, id int64) (bool, error)
}

// TokenDecoder resolves a bearer token to its subject user ID. Any error
// means the token is not acceptable.
type TokenDecoder interface {
	Subject(token string) (int64, error)
}

// Options tunes a Verifier. Zero values select the defaults.
type Options struct {
	// TTL caps how long a positive verdict is cached. Default 300s.
	TTL time.Duration
	// Retry governs store and cache calls. Default retry.Default().
	Retry *retry.Policy
	// Now is the clock used for expiry checks. Default time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Verifier implements the credential verification pipeline: cache first,
// then the store, writing positive verdicts back to the cache.
type Verifier struct {
	store  CredentialStore
	tokens TokenDecoder
	cache  cache.Cache
	ttl    time.Duration
	retry  retry.Policy
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Verifier.
func New(creds CredentialStore, tokens TokenDecoder, c cache.Cache, opts Options) *Verifier {
	v := &Verifier{
		store:  creds,
		tokens: tokens,
		cache:  c,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if v.ttl <= 0 {
		v.ttl = cache.DefaultTTL
	}
	if opts.Retry != nil {
		v.retry = *opts.Retry
	} else {
		v.retry = retry.Default()
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.logger == nil {
		v.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return v
}

// ParseHeader splits an Authorization header into its lowercased scheme and
// credential. ok is false unless the header holds exactly two
// whitespace-separated tokens.
func ParseHeader(header string) (scheme, credential string, ok bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.ToLower(parts[0]), parts[1], true
}

// Verify judges header. Expected outcomes, including every kind of bad
// credential, come back as a Result. A non-nil error always wraps
// ErrUnavailable and means no verdict could be reached.
func (v *Verifier) Verify(ctx context.Context, header string) (Result, error) {
	scheme, credential, ok := ParseHeader(header)
	if !ok {
		return Invalid(ReasonFormat), nil
	}

	switch scheme {
	case SchemeAPIKey:
		return v.verifyAPIKey(ctx, credential)
	case SchemeBearer:
		return v.verifyBearer(ctx, credential)
	default:
		return Invalid(ReasonUnsupportedScheme), nil
	}
}

func (v *Verifier) verifyAPIKey(ctx context.Context, key string) (Result, error) {
	fp := secret.Fingerprint(key)
	cacheKey := cache.APIKeyKey(fp)
	log := v.logger.With("scheme", SchemeAPIKey, "key_prefix", fp[:8])

	if entry, hit, err := v.cacheGet(ctx, cacheKey); err != nil {
		return Result{}, err
	} else if hit && entry.Valid {
		log.Debug("verification served from cache", "owner_id", entry.OwnerID)
		return Result{
			Valid:      true,
			OwnerID:    entry.OwnerID,
			Permission: entry.Permission,
			KeyID:      entry.KeyID,
			Scheme:     SchemeAPIKey,
			Cached:     true,
		}, nil
	}

	cred, err := retry.DoValue(ctx, v.retry, func(ctx context.Context) (*model.Credential, error) {
		c, err := v.store.GetCredentialByFingerprint(ctx, fp)
		if errors.Is(err, store.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return c, err
	})
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("api key rejected", "reason", ReasonInvalidOrRevoked)
		return Invalid(ReasonInvalidOrRevoked), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: credential lookup: %v", ErrUnavailable, err)
	}

	now := v.now()
	if cred.Revoked {
		log.Debug("api key rejected", "reason", ReasonInvalidOrRevoked, "key_id", cred.ID)
		return Invalid(ReasonInvalidOrRevoked), nil
	}
	if cred.Expired(now) {
		log.Debug("api key rejected", "reason", ReasonExpired, "key_id", cred.ID)
		return Invalid(ReasonExpired), nil
	}

	keyID := cred.ID
	res := Result{
		Valid:      true,
		OwnerID:    cred.OwnerID,
		Permission: cred.Permission,
		KeyID:      &keyID,
		Scheme:     SchemeAPIKey,
	}

	// A cached verdict must not outlive the credential's own expiry.
	ttl := v.ttl
	if cred.ExpiresAt != nil {
		if remaining := cred.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	v.cacheSet(ctx, cacheKey, cache.Entry{
		Valid:      true,
		Permission: res.Permission,
		OwnerID:    res.OwnerID,
		KeyID:      res.KeyID,
	}, ttl)

	log.Debug("api key verified", "owner_id", res.OwnerID, "key_id", keyID)
	return res, nil
}

func (v *Verifier) verifyBearer(ctx context.Context, token string) (Result, error) {
	userID, err := v.tokens.Subject(token)
	if err != nil {
		v.logger.Debug("bearer token rejected", "reason", ReasonInvalidToken, "error", err)
		return Invalid(ReasonInvalidToken), nil
	}

	// Session tokens always carry full access.
	res := Result{
		Valid:      true,
		OwnerID:    userID,
		Permission: model.PermissionReadWrite,
		Scheme:     SchemeBearer,
	}

	cacheKey := cache.SubjectKey(userID)
	if entry, hit, err := v.cacheGet(ctx, cacheKey); err != nil {
		return Result{}, err
	} else if hit && entry.Valid {
		res.Cached = true
		return res, nil
	}

	exists, err := retry.DoValue(ctx, v.retry, func(ctx context.Context) (bool, error) {
		return v.store.UserExists(ctx, userID)
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: user lookup: %v", ErrUnavailable, err)
	}
	if !exists {
		v.logger.Debug("bearer token rejected", "reason", ReasonUserNotFound, "user_id", userID)
		return Invalid(ReasonUserNotFound), nil
	}

	v.cacheSet(ctx, cacheKey, cache.Entry{
		Valid:      true,
		Permission: model.PermissionReadWrite,
		OwnerID:    userID,
	}, v.ttl)
	return res, nil
}

func (v *Verifier) cacheGet(ctx context.Context, key string) (cache.Entry, bool, error) {
	type lookup struct {
		entry cache.Entry
		hit   bool
	}
	got, err := retry.DoValue(ctx, v.retry, func(ctx context.Context) (lookup, error) {
		e, hit, err := v.cache.Get(ctx, key)
		if errors.Is(err, cache.ErrCorrupt) {
			return lookup{}, retry.Permanent(err)
		}
		return lookup{e, hit}, err
	})
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("%w: cache read: %v", ErrUnavailable, err)
	}
	return got.entry, got.hit, nil
}

// cacheSet writes through to the cache. The verdict already came from the
// store, so a failed write is logged and does not change the outcome.
func (v *Verifier) cacheSet(ctx context.Context, key string, e cache.Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	err := retry.Do(ctx, v.retry, func(ctx context.Context) error {
		return v.cache.Set(ctx, key, e, ttl)
	})
	if err != nil {
		v.logger.Warn("cache write failed", "error", err)
	}
}
