package models

import "time"

// PaymentStatus is the state of a ledger row.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// PaymentType distinguishes a full course purchase from installment payments.
type PaymentType string

const (
	PaymentTypeFull           PaymentType = "full"
	PaymentTypeEMIEnrollment  PaymentType = "emi_enrollment"
	PaymentTypeEMIInstallment PaymentType = "emi_installment"
)

// Payment is one row of the append-only payment ledger. A row is immutable
// once completed.
type Payment struct {
	ID               string        `db:"id" json:"id"`
	UserID           string        `db:"user_id" json:"user_id"`
	CourseID         string        `db:"course_id" json:"course_id"`
	PlanID           *string       `db:"plan_id" json:"plan_id,omitempty"`
	Amount           float64       `db:"amount" json:"amount"`
	Currency         string        `db:"currency" json:"currency"`
	TransactionID    string        `db:"transaction_id" json:"transaction_id"`
	Method           string        `db:"method" json:"method"`
	Status           PaymentStatus `db:"status" json:"status"`
	Type             PaymentType   `db:"type" json:"type"`
	Gateway          string        `db:"gateway" json:"gateway"`
	GatewayOrderID   *string       `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string       `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature *string       `db:"gateway_signature" json:"-"`
	GatewayToken     *string       `db:"gateway_token" json:"gateway_token,omitempty"`
	GatewayRedirect  *string       `db:"gateway_redirect_url" json:"gateway_redirect_url,omitempty"`
	EMIDueDay        *int          `db:"emi_due_day" json:"emi_due_day,omitempty"`
	IPAddress        string        `db:"ip_address" json:"-"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// SettledInstallment records which installment a ledger row settled,
// kept for audit and reconciliation.
type SettledInstallment struct {
	PaymentID     string    `db:"payment_id" json:"-"`
	InstallmentID string    `db:"installment_id" json:"installment_id"`
	Sequence      int       `db:"sequence" json:"sequence"`
	PeriodLabel   string    `db:"period_label" json:"period_label"`
	Amount        float64   `db:"amount" json:"amount"`
	DueDate       time.Time `db:"due_date" json:"due_date"`
	WasOverdue    bool      `db:"was_overdue" json:"was_overdue"`
}
