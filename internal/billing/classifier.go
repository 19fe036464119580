package billing

import (
	"sort"
	"time"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

// Summary is a point-in-time snapshot of a plan's payment state. It must be
// recomputed on every read because the clock moves; it is never persisted.
type Summary struct {
	TotalInstallments int `json:"total_installments"`
	PaidCount         int `json:"paid_count"`
	PendingCount      int `json:"pending_count"`
	LateCount         int `json:"late_count"`
	OverdueCount      int `json:"overdue_count"`
	GraceCount        int `json:"grace_count"`
	UpcomingCount     int `json:"upcoming_count"`

	TotalAmount    float64 `json:"total_amount"`
	TotalPaid      float64 `json:"total_paid"`
	TotalOverdue   float64 `json:"total_overdue"`
	TotalRemaining float64 `json:"total_remaining"`
	NextDueAmount  float64 `json:"next_due_amount"`

	NextDueDate *time.Time `json:"next_due_date,omitempty"`

	PlanStatus          models.PlanStatus `json:"plan_status"`
	HasOverduePayments  bool              `json:"has_overdue_payments"`
	IsCurrentOnPayments bool              `json:"is_current_on_payments"`
	HasAccessToContent  bool              `json:"has_access_to_content"`

	Overdue  []models.Installment `json:"overdue,omitempty"`
	InGrace  []models.Installment `json:"in_grace,omitempty"`
	Upcoming []models.Installment `json:"upcoming,omitempty"`
	Paid     []models.Installment `json:"paid,omitempty"`
}

func graceEnd(inst models.Installment) time.Time {
	if inst.GracePeriodEnd != nil {
		return *inst.GracePeriodEnd
	}
	return inst.DueDate
}

func unpaid(inst models.Installment) bool {
	return inst.Status == models.InstallmentStatusPending || inst.Status == models.InstallmentStatusLate
}

// IsOverdue reports whether an installment is unpaid past its grace period.
func IsOverdue(inst models.Installment, now time.Time) bool {
	return unpaid(inst) && now.After(graceEnd(inst))
}

// IsInGrace reports whether an installment is due but still inside its
// grace window.
func IsInGrace(inst models.Installment, now time.Time) bool {
	return unpaid(inst) && !inst.DueDate.After(now) && !now.After(graceEnd(inst))
}

// IsUpcoming reports whether an installment is unpaid with a future due
// date.
func IsUpcoming(inst models.Installment, now time.Time) bool {
	return unpaid(inst) && inst.DueDate.After(now)
}

func sortByDue(list []models.Installment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].DueDate.Equal(list[j].DueDate) {
			return list[i].Sequence < list[j].Sequence
		}
		return list[i].DueDate.Before(list[j].DueDate)
	})
}

// Classify derives counts, amounts and access eligibility for a plan at
// the given instant. Pure; no I/O.
func Classify(plan *models.EMIPlan, now time.Time) Summary {
	s := Summary{
		TotalInstallments: len(plan.Schedule),
		TotalAmount:       plan.TotalAmount,
		PlanStatus:        plan.Status,
	}

	var paidAmounts, overdueAmounts, remainingAmounts []float64
	for _, inst := range plan.Schedule {
		switch inst.Status {
		case models.InstallmentStatusPaid:
			s.PaidCount++
			s.Paid = append(s.Paid, inst)
			paidAmounts = append(paidAmounts, inst.Amount)
			continue
		case models.InstallmentStatusLate:
			s.LateCount++
		default:
			s.PendingCount++
		}

		remainingAmounts = append(remainingAmounts, inst.Amount)

		switch {
		case IsOverdue(inst, now):
			s.OverdueCount++
			s.Overdue = append(s.Overdue, inst)
			overdueAmounts = append(overdueAmounts, inst.Amount)
		case IsInGrace(inst, now):
			s.GraceCount++
			s.InGrace = append(s.InGrace, inst)
		case IsUpcoming(inst, now):
			s.UpcomingCount++
			s.Upcoming = append(s.Upcoming, inst)
		}
	}

	sortByDue(s.Overdue)
	sortByDue(s.InGrace)
	sortByDue(s.Upcoming)
	sortByDue(s.Paid)

	s.TotalPaid = money.Sum(paidAmounts...)
	s.TotalOverdue = money.Sum(overdueAmounts...)
	s.TotalRemaining = money.Sum(remainingAmounts...)

	// Overdue installments carry the earliest due dates by construction,
	// so a single due-date sort yields the oldest-debt-first next payment.
	due := make([]models.Installment, 0, s.OverdueCount+s.GraceCount+s.UpcomingCount)
	due = append(due, s.Overdue...)
	due = append(due, s.InGrace...)
	due = append(due, s.Upcoming...)
	sortByDue(due)
	if len(due) > 0 {
		next := due[0]
		s.NextDueAmount = next.Amount
		d := next.DueDate
		s.NextDueDate = &d
	}

	s.HasOverduePayments = s.OverdueCount > 0
	s.IsCurrentOnPayments = !s.HasOverduePayments
	// Access here is strictly a live-plan property. Completed plans keep
	// their content through the access gate, not the classifier.
	s.HasAccessToContent = s.IsCurrentOnPayments && plan.Status == models.PlanStatusActive
	return s
}
