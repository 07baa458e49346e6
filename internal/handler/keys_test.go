package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajidev/keygate/internal/model"
)

type keyList struct {
	Resource []map[string]interface{} `json:"resource"`
	Meta     model.ResponseMeta       `json:"meta"`
}

func TestKeysCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.seedUser(t, "alice")

	// Create
	rr := env.do(t, "POST", "/api/v1/keys", session, toJSON(t, map[string]interface{}{
		"name":            "ci",
		"permission":      "read_write",
		"expires_in_days": 30,
	}))
	assertStatus(t, rr, http.StatusCreated)

	var created map[string]interface{}
	decodeJSON(t, rr, &created)
	plaintext, _ := created["api_key"].(string)
	require.Len(t, plaintext, 64)
	assert.Equal(t, "ci", created["name"])
	assert.Equal(t, "read_write", created["permission"])
	assert.NotEmpty(t, created["expires_at"])
	assert.NotContains(t, created, "fingerprint")
	keyID := int64(created["id"].(float64))

	// The plaintext authenticates.
	rr = env.do(t, "POST", "/api/v1/auth/verify", "ApiKey "+plaintext, nil)
	assertStatus(t, rr, http.StatusOK)

	// List never shows the secret again.
	rr = env.do(t, "GET", "/api/v1/keys", session, nil)
	assertStatus(t, rr, http.StatusOK)
	assert.NotContains(t, rr.Body.String(), plaintext)
	var list keyList
	decodeJSON(t, rr, &list)
	require.Len(t, list.Resource, 1)
	assert.Equal(t, 1, list.Meta.Count)
	assert.Len(t, list.Resource[0]["prefix"], 8)

	// Revoke
	rr = env.do(t, "DELETE", fmt.Sprintf("/api/v1/keys/%d", keyID), session, nil)
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, "GET", "/api/v1/keys", session, nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &list)
	assert.Empty(t, list.Resource)
}

func TestCreateKey_DefaultsToReadOnly(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.seedUser(t, "alice")

	rr := env.do(t, "POST", "/api/v1/keys", session, toJSON(t, map[string]string{"name": "reporting"}))
	assertStatus(t, rr, http.StatusCreated)

	var created map[string]interface{}
	decodeJSON(t, rr, &created)
	assert.Equal(t, "read_only", created["permission"])
	assert.NotContains(t, created, "expires_at")
}

func TestCreateKey_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.seedUser(t, "alice")

	for name, body := range map[string]string{
		"missing name":   `{"permission":"read_only"}`,
		"bad permission": `{"name":"x","permission":"admin"}`,
		"name too long":  `{"name":"` + strings.Repeat("n", 101) + `"}`,
		"malformed json": `{"name":`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/keys", session, strings.NewReader(body))
			assertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestKeys_RequireSession(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, "alice")
	_, apiKey := env.seedKey(t, u.ID, model.PermissionReadWrite)

	rr := env.do(t, "GET", "/api/v1/keys", apiKey, nil)
	assertStatus(t, rr, http.StatusForbidden)
	assert.Equal(t, "session_required", errorReason(t, rr))

	rr = env.do(t, "GET", "/api/v1/keys", "", nil)
	assertStatus(t, rr, http.StatusUnauthorized)
	assert.Equal(t, "format_error", errorReason(t, rr))
}

func TestRevokeKey_NotFoundAndForeign(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.seedUser(t, "alice")
	_, bobSession := env.seedUser(t, "bob")
	aliceKey, aliceHeader := env.seedKey(t, alice.ID, model.PermissionReadOnly)

	rr := env.do(t, "DELETE", "/api/v1/keys/9999", bobSession, nil)
	assertStatus(t, rr, http.StatusNotFound)
	unknownBody := errorReason(t, rr)

	rr = env.do(t, "DELETE", fmt.Sprintf("/api/v1/keys/%d", aliceKey.ID), bobSession, nil)
	assertStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, unknownBody, errorReason(t, rr))

	// Alice's key still works.
	rr = env.do(t, "POST", "/api/v1/auth/verify", aliceHeader, nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestRevokeKey_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.seedUser(t, "alice")

	rr := env.do(t, "DELETE", "/api/v1/keys/abc", session, nil)
	assertStatus(t, rr, http.StatusBadRequest)
}
