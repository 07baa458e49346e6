package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ngajidev/keygate/internal/model"
	"github.com/ngajidev/keygate/internal/server/middleware"
	"github.com/ngajidev/keygate/internal/service"
)

// AttendanceStore persists attendance marks.
type AttendanceStore interface {
	CreateAttendance(ctx context.Context, a *model.Attendance) error
	ListAttendance(ctx context.Context, session string, limit int) ([]model.Attendance, error)
}

// Accepted attendance statuses; empty means present.
var attendanceStatuses = map[string]bool{
	"present": true,
	"absent":  true,
	"late":    true,
	"excused": true,
}

const maxAttendanceField = 200

// AttendanceHandler serves the data service's attendance records. Routes
// are gated by capability in the router, not here.
type AttendanceHandler struct {
	store  AttendanceStore
	logger *slog.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(store AttendanceStore, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{store: store, logger: logger}
}

// List returns recent attendance marks, optionally filtered by session.
// GET /api/v1/attendance?session=&limit=
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", 100), 1, 1000)
	rows, err := h.store.ListAttendance(r.Context(), r.URL.Query().Get("session"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "list attendance")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: rows,
		Meta:     &model.ResponseMeta{Count: len(rows)},
	})
}

type createAttendanceRequest struct {
	Name    string `json:"name"`
	Session string `json:"session"`
	Status  string `json:"status"`
}

// Create records an attendance mark attributed to the authenticated owner.
// POST /api/v1/attendance
func (h *AttendanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var req createAttendanceRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if err := validateAttendance(&req); err != nil {
		writeServiceError(w, h.logger, err, "create attendance")
		return
	}

	a := &model.Attendance{
		Name:       req.Name,
		Session:    req.Session,
		Status:     req.Status,
		RecordedBy: p.OwnerID,
	}
	if err := h.store.CreateAttendance(r.Context(), a); err != nil {
		writeServiceError(w, h.logger, err, "create attendance")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func validateAttendance(req *createAttendanceRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Session = strings.TrimSpace(req.Session)
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))

	switch {
	case req.Name == "" || req.Session == "":
		return fmt.Errorf("%w: name and session are required", service.ErrValidation)
	case len(req.Name) > maxAttendanceField || len(req.Session) > maxAttendanceField:
		return fmt.Errorf("%w: name and session must be at most %d characters", service.ErrValidation, maxAttendanceField)
	case req.Status != "" && !attendanceStatuses[req.Status]:
		return fmt.Errorf("%w: unknown status %q", service.ErrValidation, req.Status)
	}
	return nil
}
