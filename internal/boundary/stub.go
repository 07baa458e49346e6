package boundary

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/verify"
)

// StubCredential is one entry of a development credential table.
type StubCredential struct {
	Scheme     string           `yaml:"scheme"`
	Credential string           `yaml:"credential"`
	Owner      int64            `yaml:"owner"`
	Permission model.Permission `yaml:"permission"`
	KeyID      *int64           `yaml:"key_id,omitempty"`
}

type stubFile struct {
	Credentials []StubCredential `yaml:"credentials"`
}

// Stub answers from a fixed credential table. It is meant for local
// development of the data service without a running auth service.
type Stub struct {
	table map[string]StubCredential
}

// NewStub builds a Stub from entries. Bearer entries always resolve to
// read_write.
func NewStub(entries []StubCredential) (*Stub, error) {
	s := &Stub{table: make(map[string]StubCredential, len(entries))}
	for i, e := range entries {
		scheme, cred, ok := verify.ParseHeader(e.Scheme + " " + e.Credential)
		if !ok {
			return nil, fmt.Errorf("stub credential %d: scheme and credential must be single tokens", i)
		}
		switch scheme {
		case verify.SchemeBearer:
			e.Permission = model.PermissionReadWrite
		case verify.SchemeAPIKey:
			if !e.Permission.Valid() {
				return nil, fmt.Errorf("stub credential %d: invalid permission %q", i, e.Permission)
			}
		default:
			return nil, fmt.Errorf("stub credential %d: unsupported scheme %q", i, e.Scheme)
		}
		e.Scheme = scheme
		s.table[scheme+" "+cred] = e
	}
	return s, nil
}

// DefaultStub returns the built-in development table: bearer
// "valid_token_123" for owner 123 and API key "api_key_123" for owner 456
// with read_only permission.
func DefaultStub() *Stub {
	s, _ := NewStub([]StubCredential{
		{Scheme: verify.SchemeBearer, Credential: "valid_token_123", Owner: 123},
		{Scheme: verify.SchemeAPIKey, Credential: "api_key_123", Owner: 456, Permission: model.PermissionReadOnly},
	})
	return s
}

// LoadStub reads a YAML credential table from path.
func LoadStub(path string) (*Stub, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stub file: %w", err)
	}
	var f stubFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse stub file: %w", err)
	}
	return NewStub(f.Credentials)
}

func (s *Stub) Verify(_ context.Context, header string) (verify.Result, error) {
	scheme, cred, ok := verify.ParseHeader(header)
	if !ok {
		return verify.Invalid(verify.ReasonFormat), nil
	}
	if scheme != verify.SchemeBearer && scheme != verify.SchemeAPIKey {
		return verify.Invalid(verify.ReasonUnsupportedScheme), nil
	}

	e, found := s.table[scheme+" "+cred]
	if !found {
		if scheme == verify.SchemeBearer {
			return verify.Invalid(verify.ReasonInvalidToken), nil
		}
		return verify.Invalid(verify.ReasonInvalidOrRevoked), nil
	}
	return verify.Result{
		Valid:      true,
		OwnerID:    e.Owner,
		Permission: e.Permission,
		KeyID:      e.KeyID,
		Scheme:     scheme,
	}, nil
}
