package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-billing-api/internal/billing"
	"github.com/noah-isme/lms-billing-api/internal/gateway"
	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/internal/repository"
	"github.com/noah-isme/lms-billing-api/pkg/config"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

type emiPlanRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EMIPlan, error)
	FindByID(ctx context.Context, id string) (*models.EMIPlan, error)
	ListByUser(ctx context.Context, userID string) ([]models.EMIPlan, error)
	ListByStatuses(ctx context.Context, statuses ...models.PlanStatus) ([]models.EMIPlan, error)
	SettleInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, planID string, installmentIDs []string, paidAt time.Time, orderID, paymentID, signature *string) (int64, error)
	MarkInstallmentsLate(ctx context.Context, planID string, installmentIDs []string) (int64, error)
	UpdateStatus(ctx context.Context, planID string, status models.PlanStatus) error
	UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, planID string, status models.PlanStatus) error
	AppendLockEntry(ctx context.Context, entry *models.LockEntry) error
	CloseLockEntry(ctx context.Context, planID string, unlockDate time.Time) (int64, error)
	CloseLockEntryWithTx(ctx context.Context, tx *sqlx.Tx, planID string, unlockDate time.Time) (int64, error)
}

type emiPaymentRepository interface {
	FindCompletedFull(ctx context.Context, userID, courseID string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error
	CompleteWithTx(ctx context.Context, tx *sqlx.Tx, id string, paymentID, signature *string, method string) (int64, error)
	CreateSettledInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, rows []models.SettledInstallment) error
}

type emiEnrollmentRepository interface {
	FindAccessStatus(ctx context.Context, planID string) (models.AccessStatus, error)
	UpdateAccessStatus(ctx context.Context, planID string, status models.AccessStatus) error
	UpdateAccessStatusWithTx(ctx context.Context, tx *sqlx.Tx, planID string, status models.AccessStatus) error
}

type emiUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type emiCacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EMIService owns the installment billing flows: state inspection, catch-up
// and monthly payments, gateway verification and plan status repair.
type EMIService struct {
	db          *sqlx.DB
	plans       emiPlanRepository
	payments    emiPaymentRepository
	enrollments emiEnrollmentRepository
	users       emiUserRepository
	cache       emiCacheRepository
	gw          gateway.Gateway
	notifier    Notifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.BillingConfig
	now         func() time.Time
}

// NewEMIService constructs the service.
func NewEMIService(db *sqlx.DB, plans emiPlanRepository, payments emiPaymentRepository, enrollments emiEnrollmentRepository, users emiUserRepository, cache emiCacheRepository, gw gateway.Gateway, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg config.BillingConfig) *EMIService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EMIService{
		db:          db,
		plans:       plans,
		payments:    payments,
		enrollments: enrollments,
		users:       users,
		cache:       cache,
		gw:          gw,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// EMIStatusResponse pairs a plan with its point-in-time snapshot. FullyPaid
// marks a completed full purchase, in which case no plan exists.
type EMIStatusResponse struct {
	Plan      *models.EMIPlan `json:"plan,omitempty"`
	Summary   billing.Summary `json:"summary"`
	FullyPaid bool            `json:"fully_paid"`
}

// Status returns the payment state for a course. A completed full purchase
// supersedes any installment plan lookup.
func (s *EMIService) Status(ctx context.Context, userID, courseID string) (*EMIStatusResponse, error) {
	full, err := s.payments.FindCompletedFull(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if full != nil {
		return &EMIStatusResponse{FullyPaid: true}, nil
	}

	plan, err := s.plans.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no installment plan for this course")
	}
	snapshot := billing.Classify(plan, s.now())
	return &EMIStatusResponse{Plan: plan, Summary: snapshot}, nil
}

// DueResponse lists what a user owes on one course right now.
type DueResponse struct {
	PlanID        string               `json:"plan_id"`
	CourseID      string               `json:"course_id"`
	PlanStatus    models.PlanStatus    `json:"plan_status"`
	Overdue       []models.Installment `json:"overdue"`
	InGrace       []models.Installment `json:"in_grace"`
	Upcoming      []models.Installment `json:"upcoming"`
	TotalOverdue  float64              `json:"total_overdue"`
	CatchUpAmount float64              `json:"catch_up_amount"`
	NextDueAmount float64              `json:"next_due_amount"`
	NextDueDate   *time.Time           `json:"next_due_date,omitempty"`
}

// Due returns the outstanding installments for a course, split by urgency.
// CatchUpAmount settles everything already due, grace window included.
func (s *EMIService) Due(ctx context.Context, userID, courseID string) (*DueResponse, error) {
	plan, err := s.plans.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no installment plan for this course")
	}

	snapshot := billing.Classify(plan, s.now())
	catchUp := make([]float64, 0, len(snapshot.Overdue)+len(snapshot.InGrace))
	for _, inst := range snapshot.Overdue {
		catchUp = append(catchUp, inst.Amount)
	}
	for _, inst := range snapshot.InGrace {
		catchUp = append(catchUp, inst.Amount)
	}

	return &DueResponse{
		PlanID:        plan.ID,
		CourseID:      plan.CourseID,
		PlanStatus:    plan.Status,
		Overdue:       snapshot.Overdue,
		InGrace:       snapshot.InGrace,
		Upcoming:      snapshot.Upcoming,
		TotalOverdue:  snapshot.TotalOverdue,
		CatchUpAmount: money.Sum(catchUp...),
		NextDueAmount: snapshot.NextDueAmount,
		NextDueDate:   snapshot.NextDueDate,
	}, nil
}

// PlanSummary is one plan's line in a user-wide overview.
type PlanSummary struct {
	PlanID            string            `json:"plan_id"`
	CourseID          string            `json:"course_id"`
	CourseName        string            `json:"course_name"`
	PlanStatus        models.PlanStatus `json:"plan_status"`
	PaidCount         int               `json:"paid_count"`
	TotalInstallments int               `json:"total_installments"`
	TotalRemaining    float64           `json:"total_remaining"`
	TotalOverdue      float64           `json:"total_overdue"`
	NextDueAmount     float64           `json:"next_due_amount"`
	NextDueDate       *time.Time        `json:"next_due_date,omitempty"`
	HasAccess         bool              `json:"has_access"`
}

// UserEMISummary aggregates all of a user's plans.
type UserEMISummary struct {
	Plans            []PlanSummary `json:"plans"`
	TotalOutstanding float64       `json:"total_outstanding"`
	TotalOverdue     float64       `json:"total_overdue"`
	OverduePlans     int           `json:"overdue_plans"`
	LockedPlans      int           `json:"locked_plans"`
	GeneratedAt      time.Time     `json:"generated_at"`
}

func summaryCacheKey(userID string) string {
	return fmt.Sprintf("emi:summary:%s", userID)
}

// Summary returns a cached cross-course overview of the user's plans. The
// cache exists to absorb dashboard polling; every mutation invalidates it.
func (s *EMIService) Summary(ctx context.Context, userID string) (*UserEMISummary, error) {
	key := summaryCacheKey(userID)
	if s.cache != nil {
		start := time.Now()
		var cached UserEMISummary
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("summary cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	plans, err := s.plans.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &UserEMISummary{GeneratedAt: now}
	var outstanding, overdue []float64
	for i := range plans {
		plan := &plans[i]
		if plan.Status == models.PlanStatusCancelled {
			continue
		}
		snapshot := billing.Classify(plan, now)
		summary.Plans = append(summary.Plans, PlanSummary{
			PlanID:            plan.ID,
			CourseID:          plan.CourseID,
			CourseName:        plan.CourseName,
			PlanStatus:        plan.Status,
			PaidCount:         snapshot.PaidCount,
			TotalInstallments: snapshot.TotalInstallments,
			TotalRemaining:    snapshot.TotalRemaining,
			TotalOverdue:      snapshot.TotalOverdue,
			NextDueAmount:     snapshot.NextDueAmount,
			NextDueDate:       snapshot.NextDueDate,
			HasAccess:         snapshot.HasAccessToContent || plan.Status == models.PlanStatusCompleted,
		})
		outstanding = append(outstanding, snapshot.TotalRemaining)
		overdue = append(overdue, snapshot.TotalOverdue)
		if snapshot.HasOverduePayments {
			summary.OverduePlans++
		}
		if plan.Status == models.PlanStatusLocked {
			summary.LockedPlans++
		}
	}
	summary.TotalOutstanding = money.Sum(outstanding...)
	summary.TotalOverdue = money.Sum(overdue...)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cfg.SummaryCacheTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return summary, nil
}

func (s *EMIService) invalidateSummary(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey(userID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// InstallmentOrderRequest asks to open a gateway order against a plan.
type InstallmentOrderRequest struct {
	CourseID string  `json:"course_id" validate:"required"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
}

// InstallmentOrderResponse carries the opened checkout session and the
// installments the tendered amount will settle.
type InstallmentOrderResponse struct {
	OrderID     string             `json:"order_id,omitempty"`
	PaymentID   string             `json:"payment_id,omitempty"`
	Token       string             `json:"token,omitempty"`
	RedirectURL string             `json:"redirect_url,omitempty"`
	Amount      float64            `json:"amount"`
	Currency    string             `json:"currency"`
	Allocation  billing.Allocation `json:"allocation"`
}

// PayOverdue opens a gateway order that settles overdue installments only,
// oldest first. The amount must cover whole installments exactly.
func (s *EMIService) PayOverdue(ctx context.Context, userID string, req InstallmentOrderRequest) (*InstallmentOrderResponse, error) {
	return s.openInstallmentOrder(ctx, userID, req, true)
}

// PayMonthly opens a gateway order allocated across everything unpaid:
// overdue first, then in-grace, then upcoming.
func (s *EMIService) PayMonthly(ctx context.Context, userID string, req InstallmentOrderRequest) (*InstallmentOrderResponse, error) {
	return s.openInstallmentOrder(ctx, userID, req, false)
}

func (s *EMIService) openInstallmentOrder(ctx context.Context, userID string, req InstallmentOrderRequest, overdueOnly bool) (*InstallmentOrderResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid installment payment payload")
	}

	plan, err := s.plans.FindByUserAndCourse(ctx, userID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no installment plan for this course")
	}
	if billing.IsTerminal(plan.Status) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("plan is %s", plan.Status))
	}

	now := s.now()
	snapshot := billing.Classify(plan, now)
	if overdueOnly && snapshot.OverdueCount == 0 {
		return nil, appErrors.ErrNoDueEMIs
	}
	if snapshot.PendingCount == 0 && snapshot.LateCount == 0 {
		return nil, appErrors.ErrNoDueEMIs
	}

	var alloc billing.Allocation
	if overdueOnly {
		alloc = billing.AllocateOverdue(plan, req.Amount, now)
	} else {
		alloc = billing.Allocate(plan, req.Amount, now)
	}
	if !alloc.IsValidAmount || len(alloc.ToPay) == 0 {
		resp := &InstallmentOrderResponse{Amount: req.Amount, Currency: s.cfg.Currency, Allocation: alloc}
		return resp, appErrors.ErrInvalidEMIAmount
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	orderID := fmt.Sprintf("emi-%s-%d", plan.ID, now.Unix())
	order, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
		OrderID:       orderID,
		Amount:        req.Amount,
		ItemID:        plan.ID,
		ItemName:      fmt.Sprintf("Installments for %s", plan.CourseName),
		CustomerName:  user.FullName,
		CustomerEmail: user.Email,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment gateway unavailable")
	}

	payment := &models.Payment{
		UserID:         userID,
		CourseID:       plan.CourseID,
		PlanID:         &plan.ID,
		Amount:         money.Round(req.Amount),
		Currency:       s.cfg.Currency,
		TransactionID:  uuid.NewString(),
		Status:         models.PaymentStatusPending,
		Type:           models.PaymentTypeEMIInstallment,
		Gateway:        "midtrans",
		GatewayOrderID: &order.OrderID,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	s.metrics.RecordPayment(payment.Type, payment.Status)

	s.logger.Info("installment order opened",
		zap.String("plan_id", plan.ID),
		zap.String("order_id", order.OrderID),
		zap.Float64("amount", payment.Amount),
		zap.Int("installments", len(alloc.ToPay)),
		zap.Bool("overdue_only", overdueOnly))

	return &InstallmentOrderResponse{
		OrderID:     order.OrderID,
		PaymentID:   payment.ID,
		Token:       order.Token,
		RedirectURL: order.RedirectURL,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Allocation:  alloc,
	}, nil
}

// VerifyPaymentRequest identifies the gateway order to reconcile.
type VerifyPaymentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// VerifyPaymentResponse reports the settlement outcome.
type VerifyPaymentResponse struct {
	Payment      *models.Payment   `json:"payment"`
	SettledCount int64             `json:"settled_count"`
	PlanStatus   models.PlanStatus `json:"plan_status"`
	Summary      billing.Summary   `json:"summary"`
}

// VerifyPayment confirms a gateway order and applies it to the plan in one
// transaction: the ledger row completes, allocated installments flip to
// paid, and the plan status is rederived. Safe to retry; a replayed
// verification settles nothing twice.
func (s *EMIService) VerifyPayment(ctx context.Context, userID string, req VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	payment, err := s.payments.FindByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown order")
	}
	if payment.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	if payment.PlanID == nil || payment.Type != models.PaymentTypeEMIInstallment {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "order is not an installment payment")
	}

	status, err := s.gw.FetchPayment(ctx, req.OrderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment gateway unavailable")
	}
	if !gateway.Settled(status) {
		ledger := gateway.LedgerStatus(status)
		if ledger != models.PaymentStatusPending && payment.Status == models.PaymentStatusPending {
			if err := s.payments.UpdateStatus(ctx, payment.ID, ledger); err != nil {
				return nil, err
			}
			s.metrics.RecordPayment(payment.Type, ledger)
		}
		return nil, appErrors.ErrPaymentNotSettled
	}
	if !s.gw.VerifySignature(status) {
		return nil, appErrors.ErrSignatureMismatch
	}

	plan, err := s.plans.FindByID(ctx, *payment.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
	}

	now := s.now()
	alloc := billing.Allocate(plan, payment.Amount, now)
	if !alloc.IsValidAmount || len(alloc.ToPay) == 0 {
		// A retried verification lands here: the installments it paid for
		// are already settled, so the amount no longer maps onto the queue.
		if payment.Status == models.PaymentStatusCompleted {
			snapshot := billing.Classify(plan, now)
			return &VerifyPaymentResponse{Payment: payment, SettledCount: 0, PlanStatus: plan.Status, Summary: snapshot}, nil
		}
		return nil, appErrors.ErrInvalidEMIAmount
	}

	wasLocked := plan.Status == models.PlanStatusLocked
	var settled int64
	err = repository.Atomically(ctx, s.db, func(tx *sqlx.Tx) error {
		completed, err := s.payments.CompleteWithTx(ctx, tx, payment.ID, &status.TransactionID, &status.SignatureKey, status.PaymentType)
		if err != nil {
			return err
		}
		if completed == 0 {
			// Another request already consumed this order.
			return nil
		}

		ids := make([]string, 0, len(alloc.ToPay))
		settledRows := make([]models.SettledInstallment, 0, len(alloc.ToPay))
		for _, item := range alloc.ToPay {
			ids = append(ids, item.InstallmentID)
			settledRows = append(settledRows, models.SettledInstallment{
				PaymentID:     payment.ID,
				InstallmentID: item.InstallmentID,
				Sequence:      item.Sequence,
				PeriodLabel:   item.PeriodLabel,
				Amount:        item.Amount,
				DueDate:       item.DueDate,
				WasOverdue:    item.IsOverdue,
			})
		}

		settled, err = s.plans.SettleInstallmentsWithTx(ctx, tx, plan.ID, ids, now, payment.GatewayOrderID, &status.TransactionID, &status.SignatureKey)
		if err != nil {
			return err
		}
		if err := s.payments.CreateSettledInstallmentsWithTx(ctx, tx, settledRows); err != nil {
			return err
		}

		// Rederive plan status from the schedule as it will be after this
		// settlement.
		paid := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			paid[id] = struct{}{}
		}
		next := *plan
		next.Schedule = make([]models.Installment, len(plan.Schedule))
		copy(next.Schedule, plan.Schedule)
		for i := range next.Schedule {
			if _, ok := paid[next.Schedule[i].ID]; ok {
				next.Schedule[i].Status = models.InstallmentStatusPaid
				paidAt := now
				next.Schedule[i].PaymentDate = &paidAt
			}
		}
		snapshot := billing.Classify(&next, now)
		nextStatus, err := billing.NextPlanStatus(plan.Status, snapshot)
		if err != nil {
			return err
		}
		if nextStatus != plan.Status {
			if err := s.plans.UpdateStatusWithTx(ctx, tx, plan.ID, nextStatus); err != nil {
				return err
			}
		}
		if wasLocked && nextStatus != models.PlanStatusLocked {
			if _, err := s.plans.CloseLockEntryWithTx(ctx, tx, plan.ID, now); err != nil {
				return err
			}
			if err := s.enrollments.UpdateAccessStatusWithTx(ctx, tx, plan.ID, models.AccessStatusActive); err != nil {
				return err
			}
		}
		plan.Status = nextStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(payment.Type, models.PaymentStatusCompleted)
	s.metrics.RecordSettledInstallments(settled)
	if wasLocked && plan.Status != models.PlanStatusLocked {
		s.metrics.RecordLockTransition(false)
		s.notifier.Notify(ctx, models.NotifyUnlock, Notification{
			UserID:     userID,
			CourseID:   plan.CourseID,
			CourseName: plan.CourseName,
		})
	}
	s.invalidateSummary(ctx, userID)

	fresh, err := s.plans.FindByID(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		fresh = plan
	}
	snapshot := billing.Classify(fresh, now)
	payment.Status = models.PaymentStatusCompleted

	s.logger.Info("installment payment verified",
		zap.String("plan_id", plan.ID),
		zap.String("order_id", req.OrderID),
		zap.Int64("settled", settled),
		zap.String("plan_status", string(fresh.Status)))

	return &VerifyPaymentResponse{
		Payment:      payment,
		SettledCount: settled,
		PlanStatus:   fresh.Status,
		Summary:      snapshot,
	}, nil
}

// RepairOutcome describes what a status repair changed.
type RepairOutcome struct {
	PlanID         string            `json:"plan_id"`
	FromStatus     models.PlanStatus `json:"from_status"`
	ToStatus       models.PlanStatus `json:"to_status"`
	MarkedLate     int64             `json:"marked_late"`
	LockClosed     bool              `json:"lock_closed"`
	LockOpened     bool              `json:"lock_opened"`
	OverdueCount   int               `json:"overdue_count"`
	StatusChanged  bool              `json:"status_changed"`
	AccessRepaired bool              `json:"access_repaired"`
}

// Reconcile rederives one plan's installment and lifecycle statuses from the
// clock. Idempotent: a second run with the same clock changes nothing.
func (s *EMIService) Reconcile(ctx context.Context, plan *models.EMIPlan, actor string) (*RepairOutcome, error) {
	outcome := &RepairOutcome{PlanID: plan.ID, FromStatus: plan.Status, ToStatus: plan.Status}
	if billing.IsTerminal(plan.Status) {
		return outcome, nil
	}

	now := s.now()
	snapshot := billing.Classify(plan, now)
	outcome.OverdueCount = snapshot.OverdueCount

	var lateIDs []string
	for _, inst := range snapshot.Overdue {
		if inst.Status == models.InstallmentStatusPending {
			lateIDs = append(lateIDs, inst.ID)
		}
	}
	if len(lateIDs) > 0 {
		marked, err := s.plans.MarkInstallmentsLate(ctx, plan.ID, lateIDs)
		if err != nil {
			return nil, err
		}
		outcome.MarkedLate = marked
		if marked > 0 {
			s.notifier.Notify(ctx, models.NotifyLate, Notification{
				UserID:        plan.UserID,
				CourseID:      plan.CourseID,
				CourseName:    plan.CourseName,
				Amount:        snapshot.TotalOverdue,
				OverdueMonths: snapshot.OverdueCount,
			})
		}
	}

	nextStatus, err := billing.NextPlanStatus(plan.Status, snapshot)
	if err != nil {
		return nil, err
	}
	if nextStatus == plan.Status {
		if err := s.repairAccessFlag(ctx, plan, outcome); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	if err := s.plans.UpdateStatus(ctx, plan.ID, nextStatus); err != nil {
		return nil, err
	}
	outcome.ToStatus = nextStatus
	outcome.StatusChanged = true

	switch {
	case nextStatus == models.PlanStatusLocked:
		if plan.OpenLockEntry() == nil {
			entry := &models.LockEntry{
				PlanID:        plan.ID,
				LockDate:      now,
				OverdueMonths: snapshot.OverdueCount,
				Reason:        fmt.Sprintf("%d overdue installments", snapshot.OverdueCount),
				LockedBy:      actor,
			}
			if err := s.plans.AppendLockEntry(ctx, entry); err != nil {
				return nil, err
			}
			outcome.LockOpened = true
		}
		if err := s.enrollments.UpdateAccessStatus(ctx, plan.ID, models.AccessStatusLocked); err != nil {
			return nil, err
		}
		s.metrics.RecordLockTransition(true)
		s.notifier.Notify(ctx, models.NotifyLock, Notification{
			UserID:        plan.UserID,
			CourseID:      plan.CourseID,
			CourseName:    plan.CourseName,
			Amount:        snapshot.TotalOverdue,
			OverdueMonths: snapshot.OverdueCount,
		})
	case plan.Status == models.PlanStatusLocked:
		closed, err := s.plans.CloseLockEntry(ctx, plan.ID, now)
		if err != nil {
			return nil, err
		}
		outcome.LockClosed = closed > 0
		if err := s.enrollments.UpdateAccessStatus(ctx, plan.ID, models.AccessStatusActive); err != nil {
			return nil, err
		}
		s.metrics.RecordLockTransition(false)
		s.notifier.Notify(ctx, models.NotifyUnlock, Notification{
			UserID:     plan.UserID,
			CourseID:   plan.CourseID,
			CourseName: plan.CourseName,
		})
	}

	plan.Status = nextStatus
	s.invalidateSummary(ctx, plan.UserID)
	return outcome, nil
}

// repairAccessFlag realigns the enrollment's denormalized access flag with
// the plan status when the two have drifted apart.
func (s *EMIService) repairAccessFlag(ctx context.Context, plan *models.EMIPlan, outcome *RepairOutcome) error {
	desired := models.AccessStatusActive
	if plan.Status == models.PlanStatusLocked {
		desired = models.AccessStatusLocked
	}

	current, err := s.enrollments.FindAccessStatus(ctx, plan.ID)
	if err != nil {
		return err
	}
	// Empty means no enrollment row exists for the plan; nothing to repair.
	if current == "" || current == desired {
		return nil
	}

	if err := s.enrollments.UpdateAccessStatus(ctx, plan.ID, desired); err != nil {
		return err
	}
	outcome.AccessRepaired = true
	s.logger.Info("repaired drifted access flag",
		zap.String("plan_id", plan.ID),
		zap.String("from", string(current)),
		zap.String("to", string(desired)))
	return nil
}

// FixStatusForUser repairs one user's plan for a course.
func (s *EMIService) FixStatusForUser(ctx context.Context, userID, courseID, actor string) (*RepairOutcome, error) {
	plan, err := s.plans.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no installment plan for this course")
	}
	return s.Reconcile(ctx, plan, actor)
}

// RepairSummary aggregates a batch status repair.
type RepairSummary struct {
	PlansExamined int   `json:"plans_examined"`
	StatusChanged int   `json:"status_changed"`
	MarkedLate    int64 `json:"marked_late"`
	Failed        int   `json:"failed"`
}

// FixAllStatuses reconciles every live plan. A failing plan is counted and
// logged without aborting the rest of the run.
func (s *EMIService) FixAllStatuses(ctx context.Context, actor string) (*RepairSummary, error) {
	plans, err := s.plans.ListByStatuses(ctx, models.PlanStatusActive, models.PlanStatusLocked)
	if err != nil {
		return nil, err
	}

	summary := &RepairSummary{PlansExamined: len(plans)}
	for i := range plans {
		outcome, err := s.Reconcile(ctx, &plans[i], actor)
		if err != nil {
			summary.Failed++
			s.logger.Warn("plan repair failed",
				zap.String("plan_id", plans[i].ID),
				zap.Error(err))
			continue
		}
		summary.MarkedLate += outcome.MarkedLate
		if outcome.StatusChanged {
			summary.StatusChanged++
		}
	}
	return summary, nil
}
