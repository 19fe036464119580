package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-billing-api/internal/billing"
	"github.com/noah-isme/lms-billing-api/internal/models"
)

type accessPaymentRepository interface {
	FindCompletedFull(ctx context.Context, userID, courseID string) (*models.Payment, error)
}

type accessPlanRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EMIPlan, error)
}

// AccessService decides what a user may see of a course. The decision is
// computed fresh on every call; it is derived state and never stored.
type AccessService struct {
	payments accessPaymentRepository
	plans    accessPlanRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccessService constructs an AccessService.
func NewAccessService(payments accessPaymentRepository, plans accessPlanRepository, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{payments: payments, plans: plans, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Check returns the access decision for a user and course. A completed full
// purchase supersedes any installment plan state, including locks.
func (s *AccessService) Check(ctx context.Context, userID, courseID string) (*models.AccessDecision, error) {
	full, err := s.payments.FindCompletedFull(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if full != nil {
		return &models.AccessDecision{
			HasAccess:   true,
			Reason:      models.AccessReasonFullPayment,
			AccessType:  "full",
			PaymentType: string(models.PaymentTypeFull),
		}, nil
	}

	plan, err := s.plans.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.Status == models.PlanStatusCancelled {
		return &models.AccessDecision{
			Reason:      models.AccessReasonPaymentRequired,
			AccessType:  "none",
			PaymentType: "none",
		}, nil
	}

	// A completed plan is fully paid off; its access never lapses again.
	if plan.Status == models.PlanStatusCompleted {
		return &models.AccessDecision{
			HasAccess:   true,
			Reason:      models.AccessReasonEMICompleted,
			AccessType:  "emi",
			PaymentType: string(models.PaymentTypeEMIInstallment),
		}, nil
	}

	snapshot := billing.Classify(plan, s.now())
	decision := &models.AccessDecision{
		HasAccess:     snapshot.HasAccessToContent,
		AccessType:    "emi",
		PaymentType:   string(models.PaymentTypeEMIInstallment),
		OverdueCount:  snapshot.OverdueCount,
		TotalOverdue:  snapshot.TotalOverdue,
		NextDueAmount: snapshot.NextDueAmount,
		NextDueDate:   snapshot.NextDueDate,
	}

	// Overdue debt is reported ahead of the lock state so the caller sees
	// the amount that clears it, even on plans the sweeper already locked.
	switch {
	case snapshot.HasOverduePayments:
		decision.Reason = models.AccessReasonEMIOverdue
	case plan.Status == models.PlanStatusLocked:
		decision.Reason = models.AccessReasonEMILocked
	default:
		decision.Reason = models.AccessReasonEMIActive
	}

	return decision, nil
}
