package models

import "time"

// AccessReason explains an access decision.
type AccessReason string

const (
	AccessReasonFullPayment     AccessReason = "full_payment"
	AccessReasonEMIActive       AccessReason = "emi_active"
	AccessReasonEMICompleted    AccessReason = "emi_completed"
	AccessReasonEMIOverdue      AccessReason = "emi_overdue"
	AccessReasonEMILocked       AccessReason = "emi_locked"
	AccessReasonPaymentRequired AccessReason = "payment_required"
)

// AccessDecision is the read-only verdict the gate attaches for downstream
// handlers. It never denies outright; handlers choose how much content to
// reveal on a limited decision.
type AccessDecision struct {
	HasAccess   bool         `json:"has_access"`
	Reason      AccessReason `json:"reason"`
	AccessType  string       `json:"access_type"`
	PaymentType string       `json:"payment_type"`

	OverdueCount  int        `json:"overdue_count,omitempty"`
	TotalOverdue  float64    `json:"total_overdue,omitempty"`
	NextDueAmount float64    `json:"next_due_amount,omitempty"`
	NextDueDate   *time.Time `json:"next_due_date,omitempty"`
}

// NotificationEvent enumerates the best-effort notification kinds.
type NotificationEvent string

const (
	NotifyWelcome  NotificationEvent = "welcome"
	NotifyReminder NotificationEvent = "reminder"
	NotifyLate     NotificationEvent = "late"
	NotifyLock     NotificationEvent = "lock"
	NotifyUnlock   NotificationEvent = "unlock"
)
