package verify

import (
	"errors"

	"github.com/ngajidev/keygate/internal/model"
)

// Capability is the kind of access an operation needs.
type Capability string

const (
	CapabilityRead  Capability = "read"
	CapabilityWrite Capability = "write"
)

var (
	// ErrInvalidCredential is returned by Authorize for a rejected result.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInsufficientPermission is returned when a valid credential's
	// permission does not cover the requested capability.
	ErrInsufficientPermission = errors.New("insufficient permission")
)

// Allows reports whether permission p grants capability c. read_write grants
// everything; read_only grants only read; write_only grants only write.
func Allows(p model.Permission, c Capability) bool {
	switch p {
	case model.PermissionReadWrite:
		return true
	case model.PermissionReadOnly:
		return c == CapabilityRead
	case model.PermissionWriteOnly:
		return c == CapabilityWrite
	}
	return false
}

// Authorize checks that r may perform an operation needing c.
func Authorize(r Result, c Capability) error {
	if !r.Valid {
		return ErrInvalidCredential
	}
	if !Allows(r.Permission, c) {
		return ErrInsufficientPermission
	}
	return nil
}
