package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

func TestAllocateSingleUpcoming(t *testing.T) {
	plan := onTimePlan()

	alloc := Allocate(plan, 2500, testNow)

	require.True(t, alloc.IsValidAmount)
	require.Len(t, alloc.ToPay, 1)
	assert.Equal(t, 2, alloc.ToPay[0].Sequence)
	assert.Equal(t, 2500.0, alloc.TotalAllocated)
	assert.Equal(t, 0.0, alloc.RemainingAmount)
}

func TestAllocateCatchUpCoversOverdueThenDue(t *testing.T) {
	plan := lapsedPlan()
	// Installment 3 is now in its grace window.
	due := time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC)
	grace := due.AddDate(0, 0, 3)
	plan.Schedule[2].DueDate = due
	plan.Schedule[2].GracePeriodEnd = &grace

	alloc := Allocate(plan, 5000, testNow)

	require.True(t, alloc.IsValidAmount)
	require.Len(t, alloc.ToPay, 2)
	assert.Equal(t, 2, alloc.ToPay[0].Sequence)
	assert.True(t, alloc.ToPay[0].IsOverdue)
	assert.Equal(t, 3, alloc.ToPay[1].Sequence)
	assert.True(t, alloc.ToPay[1].IsInGrace)
}

func TestAllocateRejectsAmountBetweenPrefixSums(t *testing.T) {
	plan := lapsedPlan()

	alloc := Allocate(plan, 2550, testNow)

	assert.False(t, alloc.IsValidAmount)
	require.Len(t, alloc.ToPay, 1)
	assert.Equal(t, 50.0, alloc.RemainingAmount)
	assert.Equal(t, 5000.0, alloc.SuggestedAmount)
	assert.Equal(t, 2500.0, alloc.NextAmount)
}

func TestAllocateRejectsUnderpayment(t *testing.T) {
	plan := onTimePlan()

	alloc := Allocate(plan, 1000, testNow)

	assert.False(t, alloc.IsValidAmount)
	assert.Empty(t, alloc.ToPay)
	assert.Equal(t, 1000.0, alloc.RemainingAmount)
	assert.Equal(t, 2500.0, alloc.SuggestedAmount)
	assert.Equal(t, 2500.0, alloc.NextAmount)
}

func TestAllocateFullRemainingBalance(t *testing.T) {
	plan := onTimePlan()

	alloc := Allocate(plan, 12500, testNow)

	require.True(t, alloc.IsValidAmount)
	assert.Len(t, alloc.ToPay, 5)
	assert.Equal(t, 0.0, alloc.NextAmount)
	// Nothing further to suggest once the whole queue is allocatable.
	assert.Equal(t, 12500.0, alloc.SuggestedAmount)
}

func TestAllocateDeterministicOrdering(t *testing.T) {
	plan := lapsedPlan()

	first := Allocate(plan, 5000, testNow)
	second := Allocate(plan, 5000, testNow)

	require.Equal(t, len(first.ToPay), len(second.ToPay))
	for i := range first.ToPay {
		assert.Equal(t, first.ToPay[i].InstallmentID, second.ToPay[i].InstallmentID)
	}
}

// Exact-match law: valid implies the allocated installments sum to the
// tendered amount; invalid implies no prefix sum equals it.
func TestAllocateExactMatchLaw(t *testing.T) {
	plan := lapsedPlan()

	prefixSums := map[float64]bool{}
	sum := 0.0
	for _, inst := range plan.Schedule {
		if inst.Status == models.InstallmentStatusPaid {
			continue
		}
		sum = money.Add(sum, inst.Amount)
		prefixSums[sum] = true
	}

	for _, amount := range []float64{0, 1, 2500, 2501, 5000, 7500, 9999, 12500, 13000} {
		alloc := Allocate(plan, amount, testNow)
		if alloc.IsValidAmount {
			amounts := make([]float64, len(alloc.ToPay))
			for i, p := range alloc.ToPay {
				amounts[i] = p.Amount
			}
			assert.True(t, money.Equal(money.Sum(amounts...), amount), "amount %.2f", amount)
		} else {
			assert.False(t, prefixSums[amount], "amount %.2f should not be a prefix sum", amount)
		}
	}
}

func TestAllocateIgnoresPaidInstallments(t *testing.T) {
	plan := onTimePlan()
	plan.Schedule[1].Status = models.InstallmentStatusPaid

	alloc := Allocate(plan, 2500, testNow)

	require.True(t, alloc.IsValidAmount)
	require.Len(t, alloc.ToPay, 1)
	assert.Equal(t, 3, alloc.ToPay[0].Sequence)
}
