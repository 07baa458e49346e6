package openapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAuthSpec_Info(t *testing.T) {
	doc := GenerateAuthSpec("http://localhost:8080")

	assert.Equal(t, "3.1.0", doc.OpenAPI)
	require.NotNil(t, doc.Info)
	assert.Equal(t, Version, doc.Info.Version)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "http://localhost:8080", doc.Servers[0].URL)
}

func TestGenerateAuthSpec_Paths(t *testing.T) {
	doc := GenerateAuthSpec("http://localhost:8080")

	for path, methods := range map[string][]string{
		"/api/v1/auth/login":   {"POST"},
		"/api/v1/auth/refresh": {"POST"},
		"/api/v1/auth/verify":  {"POST"},
		"/api/v1/auth/me":      {"GET"},
		"/api/v1/keys":         {"GET", "POST"},
		"/api/v1/keys/{keyId}": {"DELETE"},
	} {
		item := doc.Paths.Value(path)
		require.NotNil(t, item, "path %s", path)
		for _, m := range methods {
			assert.NotNil(t, item.GetOperation(m), "%s %s", m, path)
		}
	}
}

func TestGenerateAuthSpec_PublicOperations(t *testing.T) {
	doc := GenerateAuthSpec("")

	for _, path := range []string{"/api/v1/auth/login", "/api/v1/auth/refresh", "/api/v1/auth/verify"} {
		op := doc.Paths.Value(path).Post
		require.NotNil(t, op.Security, path)
		assert.Empty(t, *op.Security, "%s should not require credentials", path)
	}

	keys := doc.Paths.Value("/api/v1/keys").Get
	require.NotNil(t, keys.Security)
	require.Len(t, *keys.Security, 1)
	assert.Contains(t, (*keys.Security)[0], "bearerAuth")
}

func TestGenerateAuthSpec_StatusCodes(t *testing.T) {
	doc := GenerateAuthSpec("")

	refresh := doc.Paths.Value("/api/v1/auth/refresh").Post
	for _, code := range []string{"200", "400", "401", "429"} {
		assert.NotNil(t, refresh.Responses.Value(code), "refresh %s", code)
	}

	verify := doc.Paths.Value("/api/v1/auth/verify").Post
	unauthorized := verify.Responses.Value("401")
	require.NotNil(t, unauthorized)
	assert.Equal(t, "#/components/schemas/VerifyResult",
		unauthorized.Value.Content.Get("application/json").Schema.Ref)
	assert.NotNil(t, verify.Responses.Value("503"))

	revoke := doc.Paths.Value("/api/v1/keys/{keyId}").Delete
	assert.NotNil(t, revoke.Responses.Value("404"))
	require.Len(t, revoke.Parameters, 1)
	assert.Equal(t, "keyId", revoke.Parameters[0].Value.Name)
}

func TestGenerateAuthSpec_CreateKeyResponse(t *testing.T) {
	doc := GenerateAuthSpec("")

	created := doc.Paths.Value("/api/v1/keys").Post.Responses.Value("201")
	require.NotNil(t, created)
	schema := created.Value.Content.Get("application/json").Schema.Value
	require.NotNil(t, schema)
	assert.Contains(t, schema.Properties, "api_key")
	assert.ElementsMatch(t, []string{"id", "api_key"}, schema.Required)
}

func TestGenerateAuthSpec_Schemas(t *testing.T) {
	doc := GenerateAuthSpec("")

	for _, name := range []string{"ErrorResponse", "VerifyResult", "TokenPair", "APIKey"} {
		assert.Contains(t, doc.Components.Schemas, name)
	}

	perm := doc.Components.Schemas["APIKey"].Value.Properties["permission"].Value
	assert.ElementsMatch(t, []any{"read_only", "write_only", "read_write"}, perm.Enum)

	reasons := doc.Components.Schemas["VerifyResult"].Value.Properties["error"].Value
	assert.Contains(t, reasons.Enum, "unsupported_scheme")

	errDetail := doc.Components.Schemas["ErrorResponse"].Value.Properties["error"].Value
	assert.Contains(t, errDetail.Properties, "reason")
}

func TestGenerateAuthSpec_SecuritySchemes(t *testing.T) {
	doc := GenerateAuthSpec("")

	apiKey := doc.Components.SecuritySchemes["apiKey"]
	require.NotNil(t, apiKey)
	assert.Equal(t, "apiKey", apiKey.Value.Type)
	assert.Equal(t, "Authorization", apiKey.Value.Name)

	bearer := doc.Components.SecuritySchemes["bearerAuth"]
	require.NotNil(t, bearer)
	assert.Equal(t, "bearer", bearer.Value.Scheme)
	assert.Equal(t, "JWT", bearer.Value.BearerFormat)

	assert.Len(t, doc.Security, 2)
}

func TestGenerateDataSpec(t *testing.T) {
	doc := GenerateDataSpec("http://localhost:8081")

	item := doc.Paths.Value("/api/v1/attendance")
	require.NotNil(t, item)
	require.NotNil(t, item.Get)
	require.NotNil(t, item.Post)
	assert.NotNil(t, item.Post.Responses.Value("403"))
	assert.Contains(t, doc.Components.Schemas, "Attendance")
	assert.Nil(t, doc.Paths.Value("/api/v1/keys"))
}

func TestGeneratedSpecsMarshal(t *testing.T) {
	for _, doc := range []interface{ MarshalJSON() ([]byte, error) }{
		GenerateAuthSpec("http://localhost:8080"),
		GenerateDataSpec("http://localhost:8081"),
	} {
		b, err := json.Marshal(doc)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		assert.Equal(t, "3.1.0", m["openapi"])
		assert.Contains(t, m, "paths")
	}
}
