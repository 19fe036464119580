package models

import "time"

// EMIOffer is the installment configuration a course may carry.
type EMIOffer struct {
	Available     bool    `db:"emi_available" json:"available"`
	Months        int     `db:"emi_months" json:"months"`
	MonthlyAmount float64 `db:"emi_monthly_amount" json:"monthly_amount"`
	TotalAmount   float64 `db:"emi_total_amount" json:"total_amount"`
}

// Course is the sellable catalog entry. Only the fields the billing engine
// needs are modeled here; content delivery holds the rest.
type Course struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Price           float64   `db:"price" json:"price"`
	DurationMonths  int       `db:"duration_months" json:"duration_months"`
	EnrollmentCount int       `db:"enrollment_count" json:"enrollment_count"`
	EMI             EMIOffer  `db:"-" json:"emi"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Chapter is one unit of course content. The first chapter is always
// served as a preview regardless of access status.
type Chapter struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"-"`
	Sequence int    `db:"sequence" json:"sequence"`
	Title    string `db:"title" json:"title"`
	Body     string `db:"body" json:"body,omitempty"`
}
