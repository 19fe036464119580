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

// EnrollmentRepository manages course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = "id, user_id, course_id, course_name, plan_id, access_status, enrolled_at"

// FindByUserAndCourse fetches an enrollment. Returns nil when none exists.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE user_id = $1 AND course_id = $2", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListByUser returns all enrollments for a user.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC", enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// CreateWithTx inserts an enrollment inside a transaction.
func (r *EnrollmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	query := `INSERT INTO enrollments (id, user_id, course_id, course_name, plan_id, access_status, enrolled_at)
VALUES (:id, :user_id, :course_id, :course_name, :plan_id, :access_status, :enrolled_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// FindAccessStatus reads the denormalized access flag for a plan's
// enrollment. Returns "" when no enrollment references the plan.
func (r *EnrollmentRepository) FindAccessStatus(ctx context.Context, planID string) (models.AccessStatus, error) {
	var status models.AccessStatus
	query := "SELECT access_status FROM enrollments WHERE plan_id = $1"
	if err := r.db.GetContext(ctx, &status, query, planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find enrollment access status: %w", err)
	}
	return status, nil
}

// UpdateAccessStatus flips the denormalized access flag for a plan's
// enrollment.
func (r *EnrollmentRepository) UpdateAccessStatus(ctx context.Context, planID string, status models.AccessStatus) error {
	return r.updateAccessStatus(ctx, r.db, planID, status)
}

// UpdateAccessStatusWithTx flips the access flag inside a transaction.
func (r *EnrollmentRepository) UpdateAccessStatusWithTx(ctx context.Context, tx *sqlx.Tx, planID string, status models.AccessStatus) error {
	return r.updateAccessStatus(ctx, tx, planID, status)
}

func (r *EnrollmentRepository) updateAccessStatus(ctx context.Context, execer sqlx.ExecerContext, planID string, status models.AccessStatus) error {
	query := "UPDATE enrollments SET access_status = $1 WHERE plan_id = $2"
	if _, err := execer.ExecContext(ctx, query, status, planID); err != nil {
		return fmt.Errorf("update enrollment access status: %w", err)
	}
	return nil
}
