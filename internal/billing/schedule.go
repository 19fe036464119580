package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

// DefaultGraceDays is the grace window for every installment after the
// first. The first installment is paid at enrollment and has no grace.
const DefaultGraceDays = 3

// NextDueDate returns the due date monthsOffset months after start, on
// dueDay of that month clamped to the month's last day.
func NextDueDate(start time.Time, dueDay, monthsOffset int) time.Time {
	anchor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	target := anchor.AddDate(0, monthsOffset, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := dueDay
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, start.Location())
}

// PeriodLabel is the human label of the covered period, derived from the
// due date. Display-only.
func PeriodLabel(dueDate time.Time) string {
	return dueDate.Month().String()
}

// BuildSchedule creates the fixed installment list for a new plan. The
// first installment is recorded as paid at start; installments 2..months
// fall due on dueDay of the following months with a grace window.
func BuildSchedule(start time.Time, dueDay, months int, monthlyAmount float64, graceDays int) []models.Installment {
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}
	amount := money.Round(monthlyAmount)
	paidAt := start

	schedule := make([]models.Installment, 0, months)
	schedule = append(schedule, models.Installment{
		ID:          uuid.NewString(),
		Sequence:    1,
		PeriodLabel: PeriodLabel(start),
		DueDate:     start,
		Amount:      amount,
		Status:      models.InstallmentStatusPaid,
		PaymentDate: &paidAt,
	})

	for seq := 2; seq <= months; seq++ {
		due := NextDueDate(start, dueDay, seq-1)
		graceEnd := due.AddDate(0, 0, graceDays)
		schedule = append(schedule, models.Installment{
			ID:             uuid.NewString(),
			Sequence:       seq,
			PeriodLabel:    PeriodLabel(due),
			DueDate:        due,
			GracePeriodEnd: &graceEnd,
			Amount:         amount,
			Status:         models.InstallmentStatusPending,
		})
	}
	return schedule
}
