package models

import "time"

// InstallmentStatus is the persisted state of a single installment.
type InstallmentStatus string

// Possible installment statuses. "late" is recorded by the sweeper once the
// grace period has elapsed; it signals overdue severity but the installment
// stays payable.
const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusLate    InstallmentStatus = "late"
)

// PlanStatus is the lifecycle state of an EMI plan.
type PlanStatus string

// Possible plan statuses. Completed and cancelled are terminal.
const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusLocked    PlanStatus = "locked"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Installment is one scheduled partial payment within an EMI plan.
// The first installment of every plan is paid at enrollment time and
// carries no grace period.
type Installment struct {
	ID               string            `db:"id" json:"id"`
	PlanID           string            `db:"plan_id" json:"-"`
	Sequence         int               `db:"sequence" json:"sequence"`
	PeriodLabel      string            `db:"period_label" json:"period_label"`
	DueDate          time.Time         `db:"due_date" json:"due_date"`
	GracePeriodEnd   *time.Time        `db:"grace_period_end" json:"grace_period_end,omitempty"`
	Amount           float64           `db:"amount" json:"amount"`
	Status           InstallmentStatus `db:"status" json:"status"`
	PaymentDate      *time.Time        `db:"payment_date" json:"payment_date,omitempty"`
	GatewayOrderID   *string           `db:"gateway_order_id" json:"-"`
	GatewayPaymentID *string           `db:"gateway_payment_id" json:"-"`
	GatewaySignature *string           `db:"gateway_signature" json:"-"`
}

// LockEntry is one row of the append-only lock audit log. An entry without
// an UnlockDate is open; at most one open entry exists per plan.
type LockEntry struct {
	ID            string     `db:"id" json:"id"`
	PlanID        string     `db:"plan_id" json:"-"`
	LockDate      time.Time  `db:"lock_date" json:"lock_date"`
	UnlockDate    *time.Time `db:"unlock_date" json:"unlock_date,omitempty"`
	OverdueMonths int        `db:"overdue_months" json:"overdue_months"`
	Reason        string     `db:"reason" json:"reason"`
	LockedBy      string     `db:"locked_by" json:"locked_by"`
}

// EMIPlan is the aggregate root for installment billing of one course
// purchase. Exactly one plan exists per (user, course) pair.
type EMIPlan struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	CourseName   string     `db:"course_name" json:"course_name"`
	TotalAmount  float64    `db:"total_amount" json:"total_amount"`
	Installments int        `db:"installments" json:"installments"`
	DueDay       int        `db:"due_day" json:"due_day"`
	StartDate    time.Time  `db:"start_date" json:"start_date"`
	Status       PlanStatus `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Schedule    []Installment `db:"-" json:"schedule,omitempty"`
	LockHistory []LockEntry   `db:"-" json:"lock_history,omitempty"`
}

// DueInstallment is a reminder row joining an unpaid installment with the
// plan that owns it.
type DueInstallment struct {
	InstallmentID string    `db:"installment_id" json:"installment_id"`
	Sequence      int       `db:"sequence" json:"sequence"`
	PeriodLabel   string    `db:"period_label" json:"period_label"`
	DueDate       time.Time `db:"due_date" json:"due_date"`
	Amount        float64   `db:"amount" json:"amount"`
	PlanID        string    `db:"plan_id" json:"plan_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	CourseName    string    `db:"course_name" json:"course_name"`
}

// OpenLockEntry returns the lock entry without an unlock date, if any.
func (p *EMIPlan) OpenLockEntry() *LockEntry {
	for i := range p.LockHistory {
		if p.LockHistory[i].UnlockDate == nil {
			return &p.LockHistory[i]
		}
	}
	return nil
}
