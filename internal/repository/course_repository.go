package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

// CourseRepository reads the course catalog and its content chapters.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

type courseRow struct {
	ID              string       `db:"id"`
	Name            string       `db:"name"`
	Price           float64      `db:"price"`
	DurationMonths  int          `db:"duration_months"`
	EnrollmentCount int          `db:"enrollment_count"`
	EMIAvailable    bool         `db:"emi_available"`
	EMIMonths       int          `db:"emi_months"`
	EMIMonthly      float64      `db:"emi_monthly_amount"`
	EMITotal        float64      `db:"emi_total_amount"`
	CreatedAt       sql.NullTime `db:"created_at"`
}

func (row courseRow) toCourse() models.Course {
	course := models.Course{
		ID:              row.ID,
		Name:            row.Name,
		Price:           row.Price,
		DurationMonths:  row.DurationMonths,
		EnrollmentCount: row.EnrollmentCount,
		EMI: models.EMIOffer{
			Available:     row.EMIAvailable,
			Months:        row.EMIMonths,
			MonthlyAmount: row.EMIMonthly,
			TotalAmount:   row.EMITotal,
		},
	}
	if row.CreatedAt.Valid {
		course.CreatedAt = row.CreatedAt.Time
	}
	return course
}

const courseColumns = "id, name, price, duration_months, enrollment_count, emi_available, emi_months, emi_monthly_amount, emi_total_amount, created_at"

// FindByID fetches a course. Returns nil when the course does not exist.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var row courseRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	course := row.toCourse()
	return &course, nil
}

// List returns the catalog ordered by name.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses ORDER BY name", courseColumns)
	var rows []courseRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	courses := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

// ListChapters returns a course's chapters in reading order.
func (r *CourseRepository) ListChapters(ctx context.Context, courseID string) ([]models.Chapter, error) {
	query := "SELECT id, course_id, sequence, title, body FROM chapters WHERE course_id = $1 ORDER BY sequence"
	var chapters []models.Chapter
	if err := r.db.SelectContext(ctx, &chapters, query, courseID); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

// IncrementEnrollmentWithTx bumps the denormalized enrollment counter.
func (r *CourseRepository) IncrementEnrollmentWithTx(ctx context.Context, tx *sqlx.Tx, courseID string) error {
	query := "UPDATE courses SET enrollment_count = enrollment_count + 1 WHERE id = $1"
	if _, err := tx.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("increment enrollment count: %w", err)
	}
	return nil
}
