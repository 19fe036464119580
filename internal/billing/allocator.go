package billing

import (
	"time"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

// AllocatedInstallment is one installment a tendered amount settles.
type AllocatedInstallment struct {
	InstallmentID string    `json:"installment_id"`
	Sequence      int       `json:"sequence"`
	PeriodLabel   string    `json:"period_label"`
	Amount        float64   `json:"amount"`
	DueDate       time.Time `json:"due_date"`
	IsOverdue     bool      `json:"is_overdue"`
	IsInGrace     bool      `json:"is_in_grace"`
}

// Allocation maps a tendered amount onto unpaid installments. An invalid
// amount is a normal outcome, not an error; SuggestedAmount and
// NextAmount let the caller retry with a payable sum.
type Allocation struct {
	IsValidAmount   bool                   `json:"is_valid_amount"`
	ToPay           []AllocatedInstallment `json:"to_pay"`
	TotalAllocated  float64                `json:"total_allocated"`
	RemainingAmount float64                `json:"remaining_amount"`
	SuggestedAmount float64                `json:"suggested_amount"`
	NextAmount      float64                `json:"next_amount"`
}

// Allocate matches paymentAmount to a prefix of the unpaid installment
// queue ordered overdue, then in-grace, then upcoming, each by due date.
// Installments are settled whole; the payment is valid only when the
// amount is consumed exactly. Pure; no I/O.
func Allocate(plan *models.EMIPlan, paymentAmount float64, now time.Time) Allocation {
	var overdue, inGrace, upcoming []models.Installment
	for _, inst := range plan.Schedule {
		switch {
		case IsOverdue(inst, now):
			overdue = append(overdue, inst)
		case IsInGrace(inst, now):
			inGrace = append(inGrace, inst)
		case IsUpcoming(inst, now):
			upcoming = append(upcoming, inst)
		}
	}
	sortByDue(overdue)
	sortByDue(inGrace)
	sortByDue(upcoming)

	queue := make([]models.Installment, 0, len(overdue)+len(inGrace)+len(upcoming))
	queue = append(queue, overdue...)
	queue = append(queue, inGrace...)
	queue = append(queue, upcoming...)

	return allocate(queue, paymentAmount, now)
}

// AllocateOverdue matches paymentAmount against overdue installments only,
// oldest debt first. Used by catch-up payments that must not touch future
// installments.
func AllocateOverdue(plan *models.EMIPlan, paymentAmount float64, now time.Time) Allocation {
	var overdue []models.Installment
	for _, inst := range plan.Schedule {
		if IsOverdue(inst, now) {
			overdue = append(overdue, inst)
		}
	}
	sortByDue(overdue)
	return allocate(overdue, paymentAmount, now)
}

func allocate(queue []models.Installment, paymentAmount float64, now time.Time) Allocation {
	remaining := money.Round(paymentAmount)
	var toPay []AllocatedInstallment
	for _, inst := range queue {
		if !money.GTE(remaining, inst.Amount) {
			break
		}
		toPay = append(toPay, AllocatedInstallment{
			InstallmentID: inst.ID,
			Sequence:      inst.Sequence,
			PeriodLabel:   inst.PeriodLabel,
			Amount:        inst.Amount,
			DueDate:       inst.DueDate,
			IsOverdue:     IsOverdue(inst, now),
			IsInGrace:     IsInGrace(inst, now),
		})
		remaining = money.Sub(remaining, inst.Amount)
	}

	suggested := make([]float64, 0, len(toPay)+1)
	for i, inst := range queue {
		if i > len(toPay) {
			break
		}
		suggested = append(suggested, inst.Amount)
	}

	alloc := Allocation{
		IsValidAmount:   money.IsZero(remaining),
		ToPay:           toPay,
		TotalAllocated:  money.Sub(paymentAmount, remaining),
		RemainingAmount: remaining,
		SuggestedAmount: money.Sum(suggested...),
	}
	if len(toPay) < len(queue) {
		alloc.NextAmount = queue[len(toPay)].Amount
	}
	return alloc
}
