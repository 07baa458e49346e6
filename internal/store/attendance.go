package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ngajidev/keygate/internal/model"
)

// CreateAttendance inserts an attendance mark. The ID and CreatedAt fields
// are populated after a successful insert.
func (s *Store) CreateAttendance(ctx context.Context, a *model.Attendance) error {
	a.CreatedAt = time.Now().UTC()
	if a.Status == "" {
		a.Status = "present"
	}

	const q = `INSERT INTO attendance (name, session, status, recorded_by, created_at)
		VALUES (:name, :session, :status, :recorded_by, :created_at)`

	id, err := s.insert(ctx, q, a)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	a.ID = id
	return nil
}

// ListAttendance returns attendance marks newest first, at most limit rows.
// A session filter of "" matches every session.
func (s *Store) ListAttendance(ctx context.Context, session string, limit int) ([]model.Attendance, error) {
	if limit <= 0 {
		limit = 100
	}
	rows := []model.Attendance{}
	var err error
	if session == "" {
		q := s.db.Rebind("SELECT * FROM attendance ORDER BY id DESC LIMIT ?")
		err = s.db.SelectContext(ctx, &rows, q, limit)
	} else {
		q := s.db.Rebind("SELECT * FROM attendance WHERE session = ? ORDER BY id DESC LIMIT ?")
		err = s.db.SelectContext(ctx, &rows, q, session, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}
