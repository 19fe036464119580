package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

// PlanRepository manages persistence for EMI plans, their installment
// schedules and the lock audit log.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = "id, user_id, course_id, course_name, total_amount, installments, due_day, start_date, status, created_at, updated_at"

const installmentColumns = "id, plan_id, sequence, period_label, due_date, grace_period_end, amount, status, payment_date, gateway_order_id, gateway_payment_id, gateway_signature"

// FindByUserAndCourse loads the plan for a user and course together with its
// schedule and lock history. Returns nil when no plan exists.
func (r *PlanRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.EMIPlan, error) {
	query := fmt.Sprintf("SELECT %s FROM emi_plans WHERE user_id = $1 AND course_id = $2", planColumns)
	var plan models.EMIPlan
	if err := r.db.GetContext(ctx, &plan, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find plan by user and course: %w", err)
	}
	if err := r.hydrate(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByID fetches a plan with schedule and lock history by ID.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.EMIPlan, error) {
	query := fmt.Sprintf("SELECT %s FROM emi_plans WHERE id = $1", planColumns)
	var plan models.EMIPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find plan by id: %w", err)
	}
	if err := r.hydrate(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) hydrate(ctx context.Context, plan *models.EMIPlan) error {
	scheduleQuery := fmt.Sprintf("SELECT %s FROM installments WHERE plan_id = $1 ORDER BY sequence", installmentColumns)
	if err := r.db.SelectContext(ctx, &plan.Schedule, scheduleQuery, plan.ID); err != nil {
		return fmt.Errorf("load schedule for plan %s: %w", plan.ID, err)
	}

	lockQuery := `SELECT id, plan_id, lock_date, unlock_date, overdue_months, reason, locked_by
FROM lock_history WHERE plan_id = $1 ORDER BY lock_date`
	if err := r.db.SelectContext(ctx, &plan.LockHistory, lockQuery, plan.ID); err != nil {
		return fmt.Errorf("load lock history for plan %s: %w", plan.ID, err)
	}
	return nil
}

// CreateWithTx inserts a plan and its full installment schedule inside an
// existing transaction.
func (r *PlanRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.EMIPlan) error {
	now := time.Now().UTC()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	plan.CreatedAt = now
	plan.UpdatedAt = now

	planQuery := `INSERT INTO emi_plans (id, user_id, course_id, course_name, total_amount, installments, due_day, start_date, status, created_at, updated_at)
VALUES (:id, :user_id, :course_id, :course_name, :total_amount, :installments, :due_day, :start_date, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, planQuery, plan); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}

	instQuery := `INSERT INTO installments (id, plan_id, sequence, period_label, due_date, grace_period_end, amount, status, payment_date, gateway_order_id, gateway_payment_id, gateway_signature)
VALUES (:id, :plan_id, :sequence, :period_label, :due_date, :grace_period_end, :amount, :status, :payment_date, :gateway_order_id, :gateway_payment_id, :gateway_signature)`
	for i := range plan.Schedule {
		inst := &plan.Schedule[i]
		if inst.ID == "" {
			inst.ID = uuid.NewString()
		}
		inst.PlanID = plan.ID
		if _, err := tx.NamedExecContext(ctx, instQuery, inst); err != nil {
			return fmt.Errorf("insert installment %d: %w", inst.Sequence, err)
		}
	}
	return nil
}

// ListByUser returns all of a user's plans with schedules and lock history
// loaded.
func (r *PlanRepository) ListByUser(ctx context.Context, userID string) ([]models.EMIPlan, error) {
	query := fmt.Sprintf("SELECT %s FROM emi_plans WHERE user_id = $1 ORDER BY created_at", planColumns)
	var plans []models.EMIPlan
	if err := r.db.SelectContext(ctx, &plans, query, userID); err != nil {
		return nil, fmt.Errorf("list plans by user: %w", err)
	}
	for i := range plans {
		if err := r.hydrate(ctx, &plans[i]); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// ListByStatuses returns all plans in the given statuses with schedules and
// lock history loaded. Used by the overdue sweeper.
func (r *PlanRepository) ListByStatuses(ctx context.Context, statuses ...models.PlanStatus) ([]models.EMIPlan, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = status
	}

	query := fmt.Sprintf("SELECT %s FROM emi_plans WHERE status IN (%s) ORDER BY created_at",
		planColumns, strings.Join(placeholders, ", "))
	var plans []models.EMIPlan
	if err := r.db.SelectContext(ctx, &plans, query, args...); err != nil {
		return nil, fmt.Errorf("list plans by status: %w", err)
	}
	for i := range plans {
		if err := r.hydrate(ctx, &plans[i]); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// SettleInstallmentsWithTx flips the given installments to paid using a
// status guard so an already settled row is never counted twice. Returns the
// number of rows actually flipped.
func (r *PlanRepository) SettleInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, planID string, installmentIDs []string, paidAt time.Time, orderID, paymentID, signature *string) (int64, error) {
	if len(installmentIDs) == 0 {
		return 0, nil
	}
	args := []interface{}{paidAt, orderID, paymentID, signature, planID, models.InstallmentStatusPaid}
	placeholders := make([]string, len(installmentIDs))
	for i, id := range installmentIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf(`UPDATE installments
SET status = $6, payment_date = $1, gateway_order_id = $2, gateway_payment_id = $3, gateway_signature = $4
WHERE plan_id = $5 AND id IN (%s) AND status <> $6`, strings.Join(placeholders, ", "))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("settle installments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("settle installments rows affected: %w", err)
	}
	return affected, nil
}

// MarkInstallmentsLate flips pending installments to late. Installments paid
// or already late are left untouched.
func (r *PlanRepository) MarkInstallmentsLate(ctx context.Context, planID string, installmentIDs []string) (int64, error) {
	if len(installmentIDs) == 0 {
		return 0, nil
	}
	args := []interface{}{models.InstallmentStatusLate, planID, models.InstallmentStatusPending}
	placeholders := make([]string, len(installmentIDs))
	for i, id := range installmentIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf("UPDATE installments SET status = $1 WHERE plan_id = $2 AND status = $3 AND id IN (%s)",
		strings.Join(placeholders, ", "))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark installments late: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark installments late rows affected: %w", err)
	}
	return affected, nil
}

// UpdateStatus sets the plan lifecycle status.
func (r *PlanRepository) UpdateStatus(ctx context.Context, planID string, status models.PlanStatus) error {
	return r.updateStatus(ctx, r.db, planID, status)
}

// UpdateStatusWithTx sets the plan lifecycle status inside a transaction.
func (r *PlanRepository) UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, planID string, status models.PlanStatus) error {
	return r.updateStatus(ctx, tx, planID, status)
}

func (r *PlanRepository) updateStatus(ctx context.Context, execer sqlx.ExecerContext, planID string, status models.PlanStatus) error {
	query := "UPDATE emi_plans SET status = $1, updated_at = $2 WHERE id = $3"
	if _, err := execer.ExecContext(ctx, query, status, time.Now().UTC(), planID); err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	return nil
}

// AppendLockEntry inserts a new open entry into the lock audit log.
func (r *PlanRepository) AppendLockEntry(ctx context.Context, entry *models.LockEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	query := `INSERT INTO lock_history (id, plan_id, lock_date, unlock_date, overdue_months, reason, locked_by)
VALUES (:id, :plan_id, :lock_date, :unlock_date, :overdue_months, :reason, :locked_by)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append lock entry: %w", err)
	}
	return nil
}

// CloseLockEntry stamps the unlock date on the open lock entry, if one
// exists. Returns the number of entries closed.
func (r *PlanRepository) CloseLockEntry(ctx context.Context, planID string, unlockDate time.Time) (int64, error) {
	return r.closeLockEntry(ctx, r.db, planID, unlockDate)
}

// CloseLockEntryWithTx closes the open lock entry inside a transaction.
func (r *PlanRepository) CloseLockEntryWithTx(ctx context.Context, tx *sqlx.Tx, planID string, unlockDate time.Time) (int64, error) {
	return r.closeLockEntry(ctx, tx, planID, unlockDate)
}

func (r *PlanRepository) closeLockEntry(ctx context.Context, execer sqlx.ExecerContext, planID string, unlockDate time.Time) (int64, error) {
	query := "UPDATE lock_history SET unlock_date = $1 WHERE plan_id = $2 AND unlock_date IS NULL"
	result, err := execer.ExecContext(ctx, query, unlockDate, planID)
	if err != nil {
		return 0, fmt.Errorf("close lock entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close lock entry rows affected: %w", err)
	}
	return affected, nil
}

// ListDueWithin returns unpaid installments of active plans falling due in
// the given window, joined with plan ownership for notification fan-out.
func (r *PlanRepository) ListDueWithin(ctx context.Context, from, to time.Time) ([]models.DueInstallment, error) {
	query := `SELECT i.id AS installment_id, i.sequence, i.period_label, i.due_date, i.amount,
p.id AS plan_id, p.user_id, p.course_id, p.course_name
FROM installments i
JOIN emi_plans p ON p.id = i.plan_id
WHERE p.status = $1 AND i.status = $2 AND i.due_date >= $3 AND i.due_date <= $4
ORDER BY i.due_date`
	var rows []models.DueInstallment
	if err := r.db.SelectContext(ctx, &rows, query, models.PlanStatusActive, models.InstallmentStatusPending, from, to); err != nil {
		return nil, fmt.Errorf("list due installments: %w", err)
	}
	return rows, nil
}
