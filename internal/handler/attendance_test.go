package handler

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajidev/keygate/internal/model"
)

func TestAttendance_PermissionGate(t *testing.T) {
	env := newTestEnv(t)
	u, session := env.seedUser(t, "alice")
	_, readOnly := env.seedKey(t, u.ID, model.PermissionReadOnly)
	_, writeOnly := env.seedKey(t, u.ID, model.PermissionWriteOnly)
	_, readWrite := env.seedKey(t, u.ID, model.PermissionReadWrite)

	mark := `{"name":"Ada","session":"2025-01-15"}`

	tests := []struct {
		name   string
		header string
		method string
		want   int
	}{
		{"read_only can list", readOnly, "GET", http.StatusOK},
		{"read_only cannot record", readOnly, "POST", http.StatusForbidden},
		{"write_only cannot list", writeOnly, "GET", http.StatusForbidden},
		{"write_only can record", writeOnly, "POST", http.StatusCreated},
		{"read_write can list", readWrite, "GET", http.StatusOK},
		{"read_write can record", readWrite, "POST", http.StatusCreated},
		{"session can record", session, "POST", http.StatusCreated},
		{"no credentials", "", "GET", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.method == "POST" {
				body = strings.NewReader(mark)
			}
			rr := env.do(t, tt.method, "/api/v1/attendance", tt.header, readerOrNil(body))
			assertStatus(t, rr, tt.want)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "insufficient_permission", errorReason(t, rr))
			}
		})
	}
}

func TestAttendance_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	u, session := env.seedUser(t, "alice")

	rr := env.do(t, "POST", "/api/v1/attendance", session,
		strings.NewReader(`{"name":"  Ada ","session":"s1","status":"LATE"}`))
	assertStatus(t, rr, http.StatusCreated)

	var created model.Attendance
	decodeJSON(t, rr, &created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Ada", created.Name)
	assert.Equal(t, "late", created.Status)
	assert.Equal(t, u.ID, created.RecordedBy)

	rr = env.do(t, "POST", "/api/v1/attendance", session, strings.NewReader(`{"name":"Grace","session":"s2"}`))
	assertStatus(t, rr, http.StatusCreated)

	rr = env.do(t, "GET", "/api/v1/attendance?session=s1", session, nil)
	assertStatus(t, rr, http.StatusOK)
	var list struct {
		Resource []model.Attendance `json:"resource"`
	}
	decodeJSON(t, rr, &list)
	require.Len(t, list.Resource, 1)
	assert.Equal(t, "Ada", list.Resource[0].Name)

	rr = env.do(t, "GET", "/api/v1/attendance?limit=1", session, nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &list)
	require.Len(t, list.Resource, 1)
	assert.Equal(t, "Grace", list.Resource[0].Name, "newest first")
	assert.Equal(t, "present", list.Resource[0].Status)
}

func TestAttendance_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.seedUser(t, "alice")

	for name, body := range map[string]string{
		"missing session": `{"name":"Ada"}`,
		"blank name":      `{"name":"  ","session":"s1"}`,
		"unknown status":  `{"name":"Ada","session":"s1","status":"asleep"}`,
		"too long":        `{"name":"` + strings.Repeat("a", 201) + `","session":"s1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/attendance", session, strings.NewReader(body))
			assertStatus(t, rr, http.StatusBadRequest)
			assert.Equal(t, "validation_error", errorReason(t, rr))
		})
	}
}

func readerOrNil(r *strings.Reader) io.Reader {
	if r == nil {
		return nil
	}
	return r
}
