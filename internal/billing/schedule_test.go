package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

func TestNextDueDateClampsToMonthEnd(t *testing.T) {
	start := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC), NextDueDate(start, 15, 1))
	// February has no day 30.
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), NextDueDate(start, 30, 1))
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), NextDueDate(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC), 30, 1))
}

func TestBuildScheduleShape(t *testing.T) {
	start := time.Date(2025, time.June, 20, 9, 30, 0, 0, time.UTC)

	schedule := BuildSchedule(start, 5, 6, 2500, DefaultGraceDays)

	require.Len(t, schedule, 6)

	first := schedule[0]
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, models.InstallmentStatusPaid, first.Status)
	assert.Nil(t, first.GracePeriodEnd)
	require.NotNil(t, first.PaymentDate)
	assert.Equal(t, start, *first.PaymentDate)

	for i := 1; i < len(schedule); i++ {
		inst := schedule[i]
		assert.Equal(t, i+1, inst.Sequence)
		assert.Equal(t, models.InstallmentStatusPending, inst.Status)
		assert.Equal(t, 5, inst.DueDate.Day())
		require.NotNil(t, inst.GracePeriodEnd)
		assert.Equal(t, inst.DueDate.AddDate(0, 0, 3), *inst.GracePeriodEnd)
		assert.True(t, inst.DueDate.After(schedule[i-1].DueDate), "due dates strictly increasing")
		assert.Equal(t, inst.DueDate.Month().String(), inst.PeriodLabel)
	}
}

func TestBuildScheduleUniqueSequences(t *testing.T) {
	schedule := BuildSchedule(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), 10, 12, 999.99, 0)

	seen := map[int]bool{}
	ids := map[string]bool{}
	for _, inst := range schedule {
		assert.False(t, seen[inst.Sequence])
		seen[inst.Sequence] = true
		assert.False(t, ids[inst.ID])
		ids[inst.ID] = true
	}
	assert.Len(t, seen, 12)
}
