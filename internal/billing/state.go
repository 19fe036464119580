package billing

import (
	"fmt"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

// ErrTerminalStatus is returned when a transition is requested out of a
// completed or cancelled plan.
type ErrTerminalStatus struct {
	Status models.PlanStatus
}

func (e ErrTerminalStatus) Error() string {
	return fmt.Sprintf("plan status %q is terminal", e.Status)
}

// IsTerminal reports whether a plan status admits no further transitions.
func IsTerminal(status models.PlanStatus) bool {
	return status == models.PlanStatusCompleted || status == models.PlanStatusCancelled
}

// NextPlanStatus derives the plan status implied by a classifier snapshot.
// Transitions:
//
//	active  -> locked     at least one installment past grace
//	locked  -> active     no installment past grace
//	active|locked -> completed   every installment paid
//
// Cancellation is set externally and never derived here. Requesting a
// transition out of a terminal status is an error.
func NextPlanStatus(current models.PlanStatus, snap Summary) (models.PlanStatus, error) {
	if IsTerminal(current) {
		return current, ErrTerminalStatus{Status: current}
	}

	if snap.PendingCount == 0 && snap.LateCount == 0 {
		return models.PlanStatusCompleted, nil
	}

	switch current {
	case models.PlanStatusActive:
		if snap.HasOverduePayments {
			return models.PlanStatusLocked, nil
		}
		return models.PlanStatusActive, nil
	case models.PlanStatusLocked:
		if !snap.HasOverduePayments {
			return models.PlanStatusActive, nil
		}
		return models.PlanStatusLocked, nil
	default:
		return current, fmt.Errorf("unknown plan status %q", current)
	}
}
