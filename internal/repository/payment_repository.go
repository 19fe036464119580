package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

// PaymentRepository manages the append-only payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = "id, user_id, course_id, plan_id, amount, currency, transaction_id, method, status, type, gateway, gateway_order_id, gateway_payment_id, gateway_signature, gateway_token, gateway_redirect_url, emi_due_day, ip_address, created_at, updated_at"

// FindByID fetches a ledger row by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment by id: %w", err)
	}
	return &payment, nil
}

// FindByOrderID fetches a ledger row by gateway order reference.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE gateway_order_id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment by order id: %w", err)
	}
	return &payment, nil
}

// FindCompletedFull returns the completed full-price purchase for a user and
// course, if one exists.
func (r *PaymentRepository) FindCompletedFull(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
WHERE user_id = $1 AND course_id = $2 AND type = $3 AND status = $4
ORDER BY created_at DESC LIMIT 1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, userID, courseID, models.PaymentTypeFull, models.PaymentStatusCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find completed full payment: %w", err)
	}
	return &payment, nil
}

// FindPendingByUserAndCourse returns the most recent pending ledger row for a
// user and course, used to reuse or retire stale gateway orders.
func (r *PaymentRepository) FindPendingByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
WHERE user_id = $1 AND course_id = $2 AND status = $3
ORDER BY created_at DESC LIMIT 1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, userID, courseID, models.PaymentStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending payment: %w", err)
	}
	return &payment, nil
}

// Create inserts a new ledger row.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.create(ctx, r.db, payment)
}

// CreateWithTx inserts a new ledger row inside a transaction.
func (r *PaymentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	return r.create(ctx, tx, payment)
}

func (r *PaymentRepository) create(ctx context.Context, execer sqlx.ExtContext, payment *models.Payment) error {
	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = now
	payment.UpdatedAt = now

	query := `INSERT INTO payments (id, user_id, course_id, plan_id, amount, currency, transaction_id, method, status, type, gateway, gateway_order_id, gateway_payment_id, gateway_signature, gateway_token, gateway_redirect_url, emi_due_day, ip_address, created_at, updated_at)
VALUES (:id, :user_id, :course_id, :plan_id, :amount, :currency, :transaction_id, :method, :status, :type, :gateway, :gateway_order_id, :gateway_payment_id, :gateway_signature, :gateway_token, :gateway_redirect_url, :emi_due_day, :ip_address, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, execer, query, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// UpdateStatus moves a ledger row between pending and its outcome states.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	return r.updateStatus(ctx, r.db, id, status)
}

// UpdateStatusWithTx moves a ledger row status inside a transaction.
func (r *PaymentRepository) UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, id string, status models.PaymentStatus) error {
	return r.updateStatus(ctx, tx, id, status)
}

func (r *PaymentRepository) updateStatus(ctx context.Context, execer sqlx.ExecerContext, id string, status models.PaymentStatus) error {
	query := "UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3"
	if _, err := execer.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// CompleteWithTx marks a pending ledger row completed and stores the gateway
// references in one statement. The status guard keeps a retried callback from
// rewriting a settled row.
func (r *PaymentRepository) CompleteWithTx(ctx context.Context, tx *sqlx.Tx, id string, paymentID, signature *string, method string) (int64, error) {
	query := `UPDATE payments
SET status = $1, gateway_payment_id = $2, gateway_signature = $3, method = $4, updated_at = $5
WHERE id = $6 AND status = $7`
	result, err := tx.ExecContext(ctx, query, models.PaymentStatusCompleted, paymentID, signature, method, time.Now().UTC(), id, models.PaymentStatusPending)
	if err != nil {
		return 0, fmt.Errorf("complete payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete payment rows affected: %w", err)
	}
	return affected, nil
}

// CreateSettledInstallmentsWithTx records which installments a completed
// payment covered.
func (r *PaymentRepository) CreateSettledInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, rows []models.SettledInstallment) error {
	query := `INSERT INTO settled_installments (payment_id, installment_id, sequence, period_label, amount, due_date, was_overdue)
VALUES (:payment_id, :installment_id, :sequence, :period_label, :amount, :due_date, :was_overdue)`
	for i := range rows {
		if _, err := tx.NamedExecContext(ctx, query, rows[i]); err != nil {
			return fmt.Errorf("insert settled installment %s: %w", rows[i].InstallmentID, err)
		}
	}
	return nil
}

// ListSettledInstallments returns the installments a payment covered.
func (r *PaymentRepository) ListSettledInstallments(ctx context.Context, paymentID string) ([]models.SettledInstallment, error) {
	query := `SELECT payment_id, installment_id, sequence, period_label, amount, due_date, was_overdue
FROM settled_installments WHERE payment_id = $1 ORDER BY sequence`
	var rows []models.SettledInstallment
	if err := r.db.SelectContext(ctx, &rows, query, paymentID); err != nil {
		return nil, fmt.Errorf("list settled installments: %w", err)
	}
	return rows, nil
}

// ListByUser returns a user's ledger rows, newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Payment, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("SELECT %s FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d", paymentColumns, pageSize, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments WHERE user_id = $1", userID); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}
