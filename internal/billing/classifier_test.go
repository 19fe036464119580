package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func testPlan(status models.PlanStatus, schedule []models.Installment) *models.EMIPlan {
	total := 0.0
	for _, inst := range schedule {
		total += inst.Amount
	}
	return &models.EMIPlan{
		ID:           "plan-1",
		UserID:       "user-1",
		CourseID:     "course-1",
		CourseName:   "Applied Calculus",
		TotalAmount:  total,
		Installments: len(schedule),
		DueDay:       5,
		StartDate:    schedule[0].DueDate,
		Status:       status,
		Schedule:     schedule,
	}
}

func installment(seq int, due time.Time, amount float64, status models.InstallmentStatus, graceDays int) models.Installment {
	inst := models.Installment{
		ID:          "inst-" + string(rune('0'+seq)),
		Sequence:    seq,
		PeriodLabel: due.Month().String(),
		DueDate:     due,
		Amount:      amount,
		Status:      status,
	}
	if graceDays > 0 {
		grace := due.AddDate(0, 0, graceDays)
		inst.GracePeriodEnd = &grace
	}
	if status == models.InstallmentStatusPaid {
		paid := due
		inst.PaymentDate = &paid
	}
	return inst
}

// Plan with 6 installments: first pre-paid, the rest pending with future
// due dates.
func onTimePlan() *models.EMIPlan {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	schedule := []models.Installment{installment(1, start, 2500, models.InstallmentStatusPaid, 0)}
	for seq := 2; seq <= 6; seq++ {
		due := NextDueDate(start, 5, seq-1)
		schedule = append(schedule, installment(seq, due, 2500, models.InstallmentStatusPending, 3))
	}
	return testPlan(models.PlanStatusActive, schedule)
}

// Plan whose second installment is past grace and still pending.
func lapsedPlan() *models.EMIPlan {
	plan := onTimePlan()
	overdueDue := time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
	grace := overdueDue.AddDate(0, 0, 3)
	plan.Schedule[1].DueDate = overdueDue
	plan.Schedule[1].GracePeriodEnd = &grace
	return plan
}

func TestClassifyOnTimePayer(t *testing.T) {
	summary := Classify(onTimePlan(), testNow)

	assert.Equal(t, 6, summary.TotalInstallments)
	assert.Equal(t, 1, summary.PaidCount)
	assert.Equal(t, 5, summary.PendingCount)
	assert.Equal(t, 0, summary.OverdueCount)
	assert.True(t, summary.IsCurrentOnPayments)
	assert.True(t, summary.HasAccessToContent)
	assert.Equal(t, 2500.0, summary.TotalPaid)
	assert.Equal(t, 12500.0, summary.TotalRemaining)
}

func TestClassifyLapsedPayer(t *testing.T) {
	summary := Classify(lapsedPlan(), testNow)

	assert.Equal(t, 1, summary.OverdueCount)
	assert.True(t, summary.HasOverduePayments)
	assert.False(t, summary.HasAccessToContent)
	assert.Equal(t, 2500.0, summary.TotalOverdue)
	require.NotNil(t, summary.NextDueDate)
	// Oldest debt first: the overdue installment is the next payment.
	assert.Equal(t, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC), *summary.NextDueDate)
}

func TestClassifyGraceWindowKeepsAccess(t *testing.T) {
	plan := onTimePlan()
	due := time.Date(2025, time.June, 13, 0, 0, 0, 0, time.UTC)
	grace := due.AddDate(0, 0, 3)
	plan.Schedule[1].DueDate = due
	plan.Schedule[1].GracePeriodEnd = &grace

	summary := Classify(plan, testNow)

	assert.Equal(t, 1, summary.GraceCount)
	assert.Equal(t, 0, summary.OverdueCount)
	assert.True(t, summary.HasAccessToContent)
}

func TestClassifyLateStatusCountsAsOverdue(t *testing.T) {
	plan := lapsedPlan()
	plan.Schedule[1].Status = models.InstallmentStatusLate

	summary := Classify(plan, testNow)

	assert.Equal(t, 1, summary.LateCount)
	assert.Equal(t, 4, summary.PendingCount)
	assert.Equal(t, 1, summary.OverdueCount)
	assert.True(t, summary.HasOverduePayments)
}

func TestClassifyLockedPlanNeverGrantsAccess(t *testing.T) {
	plan := onTimePlan()
	plan.Status = models.PlanStatusLocked

	summary := Classify(plan, testNow)

	assert.True(t, summary.IsCurrentOnPayments)
	assert.False(t, summary.HasAccessToContent)
}

func TestClassifyCompletedPlanIsNotLiveAccess(t *testing.T) {
	plan := onTimePlan()
	for i := range plan.Schedule {
		plan.Schedule[i].Status = models.InstallmentStatusPaid
	}
	plan.Status = models.PlanStatusCompleted

	summary := Classify(plan, testNow)

	assert.True(t, summary.IsCurrentOnPayments)
	assert.False(t, summary.HasAccessToContent)
}

// Access implies current on payments and an active plan.
func TestAccessInvariant(t *testing.T) {
	completed := onTimePlan()
	completed.Status = models.PlanStatusCompleted
	plans := []*models.EMIPlan{onTimePlan(), lapsedPlan(), completed}
	plans[1].Status = models.PlanStatusLocked

	for _, plan := range plans {
		for _, offset := range []time.Duration{0, 24 * time.Hour, 30 * 24 * time.Hour, 365 * 24 * time.Hour} {
			summary := Classify(plan, testNow.Add(offset))
			if summary.HasAccessToContent {
				assert.False(t, summary.HasOverduePayments)
				assert.Equal(t, models.PlanStatusActive, plan.Status)
			}
		}
	}
}

func TestClassifySnapshotMovesWithClock(t *testing.T) {
	plan := onTimePlan()

	before := Classify(plan, testNow)
	assert.Equal(t, 0, before.OverdueCount)

	// Jump past the grace end of installment 2.
	after := Classify(plan, plan.Schedule[1].GracePeriodEnd.Add(time.Hour))
	assert.Equal(t, 1, after.OverdueCount)
	assert.False(t, after.HasAccessToContent)
}
