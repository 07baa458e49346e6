package model

import "time"

// Permission is the scope attached to a credential.
type Permission string

const (
	PermissionReadOnly  Permission = "read_only"
	PermissionWriteOnly Permission = "write_only"
	PermissionReadWrite Permission = "read_write"
)

// Permissions lists every accepted permission value.
var Permissions = []Permission{PermissionReadOnly, PermissionWriteOnly, PermissionReadWrite}

// Valid reports whether p is one of the known permission scopes.
func (p Permission) Valid() bool {
	switch p {
	case PermissionReadOnly, PermissionWriteOnly, PermissionReadWrite:
		return true
	}
	return false
}

// Credential is an API key record. Only the SHA-256 fingerprint of the secret
// is persisted; Secret is populated once, on the value returned by creation,
// and is never read back from storage.
type Credential struct {
	ID          int64      `json:"id" db:"id"`
	OwnerID     int64      `json:"owner_id" db:"owner_id"`
	Name        string     `json:"name" db:"name"`
	Fingerprint string     `json:"-" db:"fingerprint"` // lookup key, never expose
	Permission  Permission `json:"permission" db:"permission"`
	Revoked     bool       `json:"revoked" db:"revoked"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	Secret string `json:"-" db:"-"`
}

// Expired reports whether the credential has an expiry that lies before now.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Usable reports whether the credential may authenticate at the given time.
func (c *Credential) Usable(now time.Time) bool {
	return !c.Revoked && !c.Expired(now)
}

// DisplayPrefix returns a short, non-secret identifier derived from the
// fingerprint, suitable for listings and logs.
func (c *Credential) DisplayPrefix() string {
	if len(c.Fingerprint) < 8 {
		return c.Fingerprint
	}
	return c.Fingerprint[:8]
}
