package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

func newPaymentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPaymentRepositoryFindCompletedFull(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "plan_id", "amount", "currency", "transaction_id", "method", "status", "type", "gateway", "gateway_order_id", "gateway_payment_id", "gateway_signature", "gateway_token", "gateway_redirect_url", "emi_due_day", "ip_address", "created_at", "updated_at"}).
		AddRow("pay-1", "user-1", "course-1", nil, 15000.0, "INR", "txn-1", "card", models.PaymentStatusCompleted, models.PaymentTypeFull, "midtrans", "order-1", "gw-1", nil, nil, nil, nil, "10.0.0.1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND course_id = $2 AND type = $3 AND status = $4")).
		WithArgs("user-1", "course-1", models.PaymentTypeFull, models.PaymentStatusCompleted).
		WillReturnRows(rows)

	payment, err := repo.FindCompletedFull(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	require.Equal(t, models.PaymentTypeFull, payment.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindPendingMissing(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND course_id = $2 AND status = $3")).
		WithArgs("user-1", "course-1", models.PaymentStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	payment, err := repo.FindPendingByUserAndCourse(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.Nil(t, payment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCompleteGuardsSettledRows(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	paymentID := "gw-1"
	signature := "sig-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
		WithArgs(models.PaymentStatusCompleted, paymentID, signature, "card", sqlmock.AnyArg(), "pay-1", models.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	affected, err := repo.CompleteWithTx(context.Background(), tx, "pay-1", &paymentID, &signature, "card")
	require.NoError(t, err)
	require.Equal(t, int64(0), affected)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateSettledInstallments(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	due := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	rows := []models.SettledInstallment{
		{PaymentID: "pay-1", InstallmentID: "inst-2", Sequence: 2, PeriodLabel: "June", Amount: 2500, DueDate: due, WasOverdue: true},
		{PaymentID: "pay-1", InstallmentID: "inst-3", Sequence: 3, PeriodLabel: "July", Amount: 2500, DueDate: due.AddDate(0, 1, 0), WasOverdue: false},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settled_installments")).
		WithArgs("pay-1", "inst-2", 2, "June", 2500.0, due, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settled_installments")).
		WithArgs("pay-1", "inst-3", 3, "July", 2500.0, due.AddDate(0, 1, 0), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.CreateSettledInstallmentsWithTx(context.Background(), tx, rows))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
