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
	"github.com/noah-isme/lms-billing-api/pkg/export"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

const (
	pendingReuseWindow  = 24 * time.Hour
	pendingExpireWindow = 7 * 24 * time.Hour
)

type purchaseCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	IncrementEnrollmentWithTx(ctx context.Context, tx *sqlx.Tx, courseID string) error
}

type purchasePaymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	FindCompletedFull(ctx context.Context, userID, courseID string) (*models.Payment, error)
	FindPendingByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error
	CompleteWithTx(ctx context.Context, tx *sqlx.Tx, id string, paymentID, signature *string, method string) (int64, error)
	CreateSettledInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, rows []models.SettledInstallment) error
	ListSettledInstallments(ctx context.Context, paymentID string) ([]models.SettledInstallment, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Payment, int, error)
}

type purchasePlanRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EMIPlan, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.EMIPlan) error
}

type purchaseEnrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
}

// PaymentService owns the initial course purchase: opening gateway orders
// for full or installment checkout, confirming them, and issuing receipts.
type PaymentService struct {
	db          *sqlx.DB
	courses     purchaseCourseRepository
	payments    purchasePaymentRepository
	plans       purchasePlanRepository
	enrollments purchaseEnrollmentRepository
	users       emiUserRepository
	gw          gateway.Gateway
	notifier    Notifier
	metrics     *MetricsService
	receipts    *export.ReceiptExporter
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.BillingConfig
	now         func() time.Time
}

// NewPaymentService constructs the service.
func NewPaymentService(db *sqlx.DB, courses purchaseCourseRepository, payments purchasePaymentRepository, plans purchasePlanRepository, enrollments purchaseEnrollmentRepository, users emiUserRepository, gw gateway.Gateway, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg config.BillingConfig) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		db:          db,
		courses:     courses,
		payments:    payments,
		plans:       plans,
		enrollments: enrollments,
		users:       users,
		gw:          gw,
		notifier:    notifier,
		metrics:     metrics,
		receipts:    export.NewReceiptExporter(),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PurchaseRequest opens a checkout for a course, either paid in full or as
// an installment enrollment (first installment up front).
type PurchaseRequest struct {
	CourseID    string `json:"course_id" validate:"required"`
	PaymentType string `json:"payment_type" validate:"required,oneof=full emi"`
	DueDay      int    `json:"due_day"`
	IPAddress   string `json:"-"`
}

// PurchaseOrderResponse carries the open checkout session.
type PurchaseOrderResponse struct {
	OrderID     string  `json:"order_id"`
	PaymentID   string  `json:"payment_id"`
	Token       string  `json:"token,omitempty"`
	RedirectURL string  `json:"redirect_url,omitempty"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PaymentType string  `json:"payment_type"`
	Reused      bool    `json:"reused,omitempty"`
}

// InitiatePurchase validates the purchase and opens a gateway order. A
// recent pending order for the same course is reused rather than duplicated;
// stale ones are retired first.
func (s *PaymentService) InitiatePurchase(ctx context.Context, userID string, req PurchaseRequest) (*PurchaseOrderResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purchase payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	if full, err := s.payments.FindCompletedFull(ctx, userID, req.CourseID); err != nil {
		return nil, err
	} else if full != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already purchased")
	}
	if plan, err := s.plans.FindByUserAndCourse(ctx, userID, req.CourseID); err != nil {
		return nil, err
	} else if plan != nil && plan.Status != models.PlanStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an installment plan already exists for this course")
	}

	amount := course.Price
	var dueDay int
	paymentType := models.PaymentTypeFull
	if req.PaymentType == "emi" {
		offer, err := billing.ValidateOffer(course)
		if err != nil {
			if errors.Is(err, billing.ErrEMINotAvailable) {
				return nil, appErrors.ErrEMINotAvailable
			}
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "installment offer rejected")
		}
		if req.DueDay < s.cfg.DueDayMin || req.DueDay > s.cfg.DueDayMax {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("due day must be between %d and %d", s.cfg.DueDayMin, s.cfg.DueDayMax))
		}
		amount = offer.MonthlyAmount
		dueDay = req.DueDay
		paymentType = models.PaymentTypeEMIEnrollment
	}

	if resp, err := s.resolvePendingOrder(ctx, userID, req.CourseID, paymentType, amount); err != nil {
		return nil, err
	} else if resp != nil {
		return resp, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	now := s.now()
	orderID := fmt.Sprintf("course-%s-%d", course.ID, now.Unix())
	order, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
		OrderID:       orderID,
		Amount:        amount,
		ItemID:        course.ID,
		ItemName:      course.Name,
		CustomerName:  user.FullName,
		CustomerEmail: user.Email,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment gateway unavailable")
	}

	payment := &models.Payment{
		UserID:          userID,
		CourseID:        course.ID,
		Amount:          money.Round(amount),
		Currency:        s.cfg.Currency,
		TransactionID:   uuid.NewString(),
		Status:          models.PaymentStatusPending,
		Type:            paymentType,
		Gateway:         "midtrans",
		GatewayOrderID:  &order.OrderID,
		GatewayToken:    &order.Token,
		GatewayRedirect: &order.RedirectURL,
		IPAddress:       req.IPAddress,
	}
	if dueDay > 0 {
		payment.EMIDueDay = &dueDay
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	s.metrics.RecordPayment(payment.Type, payment.Status)

	s.logger.Info("purchase order opened",
		zap.String("course_id", course.ID),
		zap.String("order_id", order.OrderID),
		zap.String("type", string(paymentType)),
		zap.Float64("amount", payment.Amount))

	return &PurchaseOrderResponse{
		OrderID:     order.OrderID,
		PaymentID:   payment.ID,
		Token:       order.Token,
		RedirectURL: order.RedirectURL,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		PaymentType: req.PaymentType,
	}, nil
}

// resolvePendingOrder applies the stale-order policy: orders younger than a
// day are reused, orders up to a week old are expired, and anything older is
// cancelled at the gateway before a fresh order is opened.
func (s *PaymentService) resolvePendingOrder(ctx context.Context, userID, courseID string, paymentType models.PaymentType, amount float64) (*PurchaseOrderResponse, error) {
	pending, err := s.payments.FindPendingByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, nil
	}

	age := s.now().Sub(pending.CreatedAt)
	reusable := age < pendingReuseWindow &&
		pending.Type == paymentType &&
		money.Equal(pending.Amount, amount) &&
		pending.GatewayOrderID != nil &&
		pending.GatewayToken != nil

	if reusable {
		resp := &PurchaseOrderResponse{
			OrderID:     *pending.GatewayOrderID,
			PaymentID:   pending.ID,
			Amount:      pending.Amount,
			Currency:    pending.Currency,
			PaymentType: purchaseTypeLabel(pending.Type),
			Reused:      true,
		}
		resp.Token = *pending.GatewayToken
		if pending.GatewayRedirect != nil {
			resp.RedirectURL = *pending.GatewayRedirect
		}
		return resp, nil
	}

	if age >= pendingExpireWindow && pending.GatewayOrderID != nil {
		if err := s.gw.CancelOrder(ctx, *pending.GatewayOrderID); err != nil {
			s.logger.Warn("stale order cancellation failed",
				zap.String("order_id", *pending.GatewayOrderID), zap.Error(err))
		}
		if err := s.payments.UpdateStatus(ctx, pending.ID, models.PaymentStatusCancelled); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := s.payments.UpdateStatus(ctx, pending.ID, models.PaymentStatusExpired); err != nil {
		return nil, err
	}
	return nil, nil
}

func purchaseTypeLabel(t models.PaymentType) string {
	if t == models.PaymentTypeFull {
		return "full"
	}
	return "emi"
}

// VerifyPurchaseResponse reports the confirmed purchase.
type VerifyPurchaseResponse struct {
	Payment    *models.Payment    `json:"payment"`
	Enrollment *models.Enrollment `json:"enrollment,omitempty"`
	Plan       *models.EMIPlan    `json:"plan,omitempty"`
}

// VerifyPurchase confirms a purchase order at the gateway and, in one
// transaction, completes the ledger row, enrolls the user and, for
// installment purchases, creates the plan with its first installment paid.
// Retrying a verified order is a no-op.
func (s *PaymentService) VerifyPurchase(ctx context.Context, userID string, req VerifyPaymentRequest) (*VerifyPurchaseResponse, error) {
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
	if payment.Type == models.PaymentTypeEMIInstallment {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "order is not a purchase")
	}

	if payment.Status == models.PaymentStatusCompleted {
		enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, payment.CourseID)
		if err != nil {
			return nil, err
		}
		plan, err := s.plans.FindByUserAndCourse(ctx, userID, payment.CourseID)
		if err != nil {
			return nil, err
		}
		return &VerifyPurchaseResponse{Payment: payment, Enrollment: enrollment, Plan: plan}, nil
	}

	status, err := s.gw.FetchPayment(ctx, req.OrderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment gateway unavailable")
	}
	if !gateway.Settled(status) {
		ledger := gateway.LedgerStatus(status)
		if ledger != models.PaymentStatusPending {
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

	course, err := s.courses.FindByID(ctx, payment.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	now := s.now()
	var plan *models.EMIPlan
	var enrollment *models.Enrollment
	err = repository.Atomically(ctx, s.db, func(tx *sqlx.Tx) error {
		completed, err := s.payments.CompleteWithTx(ctx, tx, payment.ID, &status.TransactionID, &status.SignatureKey, status.PaymentType)
		if err != nil {
			return err
		}
		if completed == 0 {
			return nil
		}

		enrollment = &models.Enrollment{
			UserID:       userID,
			CourseID:     course.ID,
			CourseName:   course.Name,
			AccessStatus: models.AccessStatusActive,
			EnrolledAt:   now,
		}

		if payment.Type == models.PaymentTypeEMIEnrollment {
			dueDay := s.cfg.DueDayMin
			if payment.EMIDueDay != nil {
				dueDay = *payment.EMIDueDay
			}
			plan = &models.EMIPlan{
				UserID:       userID,
				CourseID:     course.ID,
				CourseName:   course.Name,
				TotalAmount:  course.EMI.TotalAmount,
				Installments: course.EMI.Months,
				DueDay:       dueDay,
				StartDate:    now,
				Status:       models.PlanStatusActive,
				Schedule:     billing.BuildSchedule(now, dueDay, course.EMI.Months, course.EMI.MonthlyAmount, s.cfg.GraceDays),
			}
			if err := s.plans.CreateWithTx(ctx, tx, plan); err != nil {
				return err
			}
			enrollment.PlanID = &plan.ID

			first := plan.Schedule[0]
			if err := s.payments.CreateSettledInstallmentsWithTx(ctx, tx, []models.SettledInstallment{{
				PaymentID:     payment.ID,
				InstallmentID: first.ID,
				Sequence:      first.Sequence,
				PeriodLabel:   first.PeriodLabel,
				Amount:        first.Amount,
				DueDate:       first.DueDate,
			}}); err != nil {
				return err
			}
		}

		if err := s.enrollments.CreateWithTx(ctx, tx, enrollment); err != nil {
			return err
		}
		return s.courses.IncrementEnrollmentWithTx(ctx, tx, course.ID)
	})
	if err != nil {
		return nil, err
	}

	payment.Status = models.PaymentStatusCompleted
	s.metrics.RecordPayment(payment.Type, models.PaymentStatusCompleted)
	s.notifier.Notify(ctx, models.NotifyWelcome, Notification{
		UserID:     userID,
		CourseID:   course.ID,
		CourseName: course.Name,
		Amount:     payment.Amount,
	})

	s.logger.Info("purchase verified",
		zap.String("course_id", course.ID),
		zap.String("order_id", req.OrderID),
		zap.String("type", string(payment.Type)))

	return &VerifyPurchaseResponse{Payment: payment, Enrollment: enrollment, Plan: plan}, nil
}

// History lists the caller's ledger rows, newest first.
func (s *PaymentService) History(ctx context.Context, userID string, page, pageSize int) ([]models.Payment, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	payments, total, err := s.payments.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return payments, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Receipt renders a PDF receipt for one of the caller's completed payments.
func (s *PaymentService) Receipt(ctx context.Context, userID, paymentID string) ([]byte, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	if payment.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "receipts are issued for completed payments only")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	course, err := s.courses.FindByID(ctx, payment.CourseID)
	if err != nil {
		return nil, err
	}
	courseName := payment.CourseID
	if course != nil {
		courseName = course.Name
	}

	settled, err := s.payments.ListSettledInstallments(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	data := export.ReceiptData{
		PaymentID:   payment.ID,
		UserName:    user.FullName,
		UserEmail:   user.Email,
		CourseName:  courseName,
		PaymentDate: payment.UpdatedAt,
		Currency:    payment.Currency,
		Amount:      payment.Amount,
	}
	if payment.GatewayOrderID != nil {
		data.OrderID = *payment.GatewayOrderID
	}
	for _, row := range settled {
		data.Lines = append(data.Lines, export.ReceiptLine{
			Sequence:    row.Sequence,
			PeriodLabel: row.PeriodLabel,
			DueDate:     row.DueDate,
			Amount:      row.Amount,
			WasOverdue:  row.WasOverdue,
		})
	}

	pdf, err := s.receipts.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "receipt rendering failed")
	}
	return pdf, nil
}
