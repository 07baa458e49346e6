package model

import "time"

// Attendance is a single attendance mark recorded through the data service.
type Attendance struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Session    string    `json:"session" db:"session"`
	Status     string    `json:"status" db:"status"`
	RecordedBy int64     `json:"recorded_by" db:"recorded_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
