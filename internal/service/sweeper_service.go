package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/config"
)

type sweeperPlanRepository interface {
	ListByStatuses(ctx context.Context, statuses ...models.PlanStatus) ([]models.EMIPlan, error)
	ListDueWithin(ctx context.Context, from, to time.Time) ([]models.DueInstallment, error)
}

type planReconciler interface {
	Reconcile(ctx context.Context, plan *models.EMIPlan, actor string) (*RepairOutcome, error)
}

// SweepSummary reports one sweep run.
type SweepSummary struct {
	PlansExamined int           `json:"plans_examined"`
	Locked        int           `json:"locked"`
	Unlocked      int           `json:"unlocked"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	MarkedLate    int64         `json:"marked_late"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// SweeperService walks every live plan and rederives its status from the
// clock. One broken plan never aborts the run; failures are counted and
// logged per plan.
type SweeperService struct {
	plans      sweeperPlanRepository
	reconciler planReconciler
	notifier   Notifier
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        config.BillingConfig
	now        func() time.Time
}

// NewSweeperService constructs the service.
func NewSweeperService(plans sweeperPlanRepository, reconciler planReconciler, notifier Notifier, metrics *MetricsService, logger *zap.Logger, cfg config.BillingConfig) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweeperService{
		plans:      plans,
		reconciler: reconciler,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessOverdue reconciles every active and locked plan.
func (s *SweeperService) ProcessOverdue(ctx context.Context) (*SweepSummary, error) {
	started := s.now()
	summary := &SweepSummary{StartedAt: started}

	plans, err := s.plans.ListByStatuses(ctx, models.PlanStatusActive, models.PlanStatusLocked)
	if err != nil {
		return nil, err
	}
	summary.PlansExamined = len(plans)

	for i := range plans {
		plan := &plans[i]
		outcome, err := s.reconciler.Reconcile(ctx, plan, "sweeper")
		if err != nil {
			summary.Failed++
			s.logger.Error("plan reconciliation failed",
				zap.String("plan_id", plan.ID),
				zap.String("user_id", plan.UserID),
				zap.Error(err))
			continue
		}
		summary.MarkedLate += outcome.MarkedLate
		if !outcome.StatusChanged {
			continue
		}
		switch outcome.ToStatus {
		case models.PlanStatusLocked:
			summary.Locked++
		case models.PlanStatusActive:
			summary.Unlocked++
		case models.PlanStatusCompleted:
			summary.Completed++
		}
	}

	summary.Duration = time.Since(started)
	s.metrics.RecordSweep(summary.Duration, summary.Locked, summary.Unlocked, summary.Completed, summary.Failed)
	s.logger.Info("overdue sweep finished",
		zap.Int("examined", summary.PlansExamined),
		zap.Int("locked", summary.Locked),
		zap.Int("unlocked", summary.Unlocked),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int64("marked_late", summary.MarkedLate),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// SendReminders notifies users whose installments fall due within the
// configured lookahead window.
func (s *SweeperService) SendReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.plans.ListDueWithin(ctx, now, now.Add(s.cfg.ReminderLookahead))
	if err != nil {
		return 0, err
	}

	for _, row := range due {
		dueDate := row.DueDate
		s.notifier.Notify(ctx, models.NotifyReminder, Notification{
			UserID:     row.UserID,
			CourseID:   row.CourseID,
			CourseName: row.CourseName,
			Amount:     row.Amount,
			DueDate:    &dueDate,
		})
	}

	s.logger.Info("payment reminders dispatched", zap.Int("count", len(due)))
	return len(due), nil
}
