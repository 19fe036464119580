package models

import "time"

// AccessStatus mirrors the owning plan's effective access. It is a
// denormalized cache; the plan plus classifier remain the source of truth.
type AccessStatus string

const (
	AccessStatusActive AccessStatus = "active"
	AccessStatusLocked AccessStatus = "locked"
)

// Enrollment links a user to a purchased course. PlanID is set only for
// installment purchases.
type Enrollment struct {
	ID           string       `db:"id" json:"id"`
	UserID       string       `db:"user_id" json:"user_id"`
	CourseID     string       `db:"course_id" json:"course_id"`
	CourseName   string       `db:"course_name" json:"course_name"`
	PlanID       *string      `db:"plan_id" json:"plan_id,omitempty"`
	AccessStatus AccessStatus `db:"access_status" json:"access_status"`
	EnrolledAt   time.Time    `db:"enrolled_at" json:"enrolled_at"`
}
