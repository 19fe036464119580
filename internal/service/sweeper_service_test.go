package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

type stubReconciler struct {
	outcomes map[string]*RepairOutcome
	errs     map[string]error
	calls    []string
}

func (s *stubReconciler) Reconcile(_ context.Context, plan *models.EMIPlan, _ string) (*RepairOutcome, error) {
	s.calls = append(s.calls, plan.ID)
	if err := s.errs[plan.ID]; err != nil {
		return nil, err
	}
	if outcome := s.outcomes[plan.ID]; outcome != nil {
		return outcome, nil
	}
	return &RepairOutcome{PlanID: plan.ID, FromStatus: plan.Status, ToStatus: plan.Status}, nil
}

func newSweeperForTest(plans *mockPlanRepo, reconciler *stubReconciler, notifier *recordingNotifier) *SweeperService {
	svc := NewSweeperService(plans, reconciler, notifier, NewMetricsService(), nil, testBillingConfig())
	svc.now = func() time.Time { return testClock }
	return svc
}

func livePlan(id string, status models.PlanStatus) *models.EMIPlan {
	return &models.EMIPlan{ID: id, UserID: "user-" + id, CourseID: "course-1", Status: status}
}

func TestProcessOverdueCountsTransitions(t *testing.T) {
	plans := newMockPlanRepo(
		livePlan("p1", models.PlanStatusActive),
		livePlan("p2", models.PlanStatusActive),
		livePlan("p3", models.PlanStatusLocked),
		livePlan("p4", models.PlanStatusActive),
	)
	reconciler := &stubReconciler{
		outcomes: map[string]*RepairOutcome{
			"p1": {PlanID: "p1", FromStatus: models.PlanStatusActive, ToStatus: models.PlanStatusLocked, StatusChanged: true, MarkedLate: 2},
			"p3": {PlanID: "p3", FromStatus: models.PlanStatusLocked, ToStatus: models.PlanStatusActive, StatusChanged: true},
			"p4": {PlanID: "p4", FromStatus: models.PlanStatusActive, ToStatus: models.PlanStatusCompleted, StatusChanged: true},
		},
	}
	svc := newSweeperForTest(plans, reconciler, &recordingNotifier{})

	summary, err := svc.ProcessOverdue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.PlansExamined)
	assert.Equal(t, 1, summary.Locked)
	assert.Equal(t, 1, summary.Unlocked)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(2), summary.MarkedLate)
	assert.Len(t, reconciler.calls, 4)
}

func TestProcessOverdueIsolatesFailures(t *testing.T) {
	plans := newMockPlanRepo(
		livePlan("p1", models.PlanStatusActive),
		livePlan("p2", models.PlanStatusActive),
		livePlan("p3", models.PlanStatusActive),
	)
	reconciler := &stubReconciler{
		outcomes: map[string]*RepairOutcome{
			"p3": {PlanID: "p3", FromStatus: models.PlanStatusActive, ToStatus: models.PlanStatusLocked, StatusChanged: true},
		},
		errs: map[string]error{"p2": errors.New("schedule row vanished")},
	}
	svc := newSweeperForTest(plans, reconciler, &recordingNotifier{})

	summary, err := svc.ProcessOverdue(context.Background())
	require.NoError(t, err)

	// The broken plan is counted and skipped; the rest still reconcile.
	assert.Equal(t, 3, summary.PlansExamined)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Locked)
	assert.Len(t, reconciler.calls, 3)
}

func TestProcessOverdueSkipsTerminalPlans(t *testing.T) {
	plans := newMockPlanRepo(
		livePlan("p1", models.PlanStatusCompleted),
		livePlan("p2", models.PlanStatusCancelled),
	)
	reconciler := &stubReconciler{}
	svc := newSweeperForTest(plans, reconciler, &recordingNotifier{})

	summary, err := svc.ProcessOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PlansExamined)
	assert.Empty(t, reconciler.calls)
}

func TestSendRemindersNotifiesUpcomingDues(t *testing.T) {
	plans := newMockPlanRepo()
	plans.dueRows = []models.DueInstallment{
		{InstallmentID: "i1", Sequence: 2, DueDate: testClock.AddDate(0, 0, 2), Amount: 2500, PlanID: "p1", UserID: "user-1", CourseID: "course-1", CourseName: "Go Fundamentals"},
		{InstallmentID: "i9", Sequence: 4, DueDate: testClock.AddDate(0, 0, 4), Amount: 3000, PlanID: "p2", UserID: "user-2", CourseID: "course-2", CourseName: "SQL Deep Dive"},
	}
	notifier := &recordingNotifier{}
	svc := newSweeperForTest(plans, &stubReconciler{}, notifier)

	count, err := svc.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []models.NotificationEvent{models.NotifyReminder, models.NotifyReminder}, notifier.events)
}
