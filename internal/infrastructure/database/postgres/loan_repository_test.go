package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"credit-engine/internal/domain/loan"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var loanRowColumns = []string{
	"id", "customer_id", "loan_amount", "tenure", "interest_rate",
	"monthly_installment", "emis_paid_on_time", "date_of_approval", "end_date",
	"created_at", "updated_at",
}

func newTestLoan() *loan.Loan {
	approval := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	return &loan.Loan{
		LoanID:             3,
		CustomerID:         1,
		LoanAmount:         decimal.RequireFromString("500000"),
		Tenure:             12,
		InterestRate:       decimal.RequireFromString("12.00"),
		MonthlyInstallment: decimal.RequireFromString("44424.39"),
		EMIsPaidOnTime:     2,
		DateOfApproval:     approval,
		EndDate:            approval.AddDate(0, 0, 360),
	}
}

func addLoanRow(rows *pgxmock.Rows, l *loan.Loan, now time.Time) *pgxmock.Rows {
	return rows.AddRow(
		l.LoanID, l.CustomerID, l.LoanAmount, l.Tenure, l.InterestRate,
		l.MonthlyInstallment, l.EMIsPaidOnTime, l.DateOfApproval, l.EndDate,
		now, now,
	)
}

func setupLoanRepo(t *testing.T) (context.Context, *LoanRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewLoanRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func TestFindLoanByIDReturnOne(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	l := newTestLoan()
	now := time.Now()

	mockPool.ExpectQuery(`SELECT .+\s+FROM loans\s+WHERE id = \$1`).
		WithArgs(l.LoanID).
		WillReturnRows(addLoanRow(pgxmock.NewRows(loanRowColumns), l, now))

	found, err := repo.FindByID(ctx, l.LoanID)
	assert.NoError(t, err)
	assert.Equal(t, l.LoanID, found.LoanID)
	assert.True(t, found.MonthlyInstallment.Equal(l.MonthlyInstallment))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestFindLoanByIDWhenMissing(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT .+\s+FROM loans\s+WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows(loanRowColumns))

	_, err := repo.FindByID(ctx, 404)
	assert.True(t, errors.Is(err, loan.ErrNotFound))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListLoansByCustomer(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	first := newTestLoan()
	second := newTestLoan()
	second.LoanID = 4
	now := time.Now()

	rows := pgxmock.NewRows(loanRowColumns)
	rows = addLoanRow(rows, first, now)
	rows = addLoanRow(rows, second, now)

	mockPool.ExpectQuery(`SELECT .+\s+FROM loans\s+WHERE customer_id = \$1\s+ORDER BY id ASC`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	loans, err := repo.ListByCustomer(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, loans, 2)
	assert.Equal(t, int64(4), loans[1].LoanID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListLoansByCustomerReturnsEmptySlice(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT .+\s+FROM loans\s+WHERE customer_id = \$1\s+ORDER BY id ASC`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows(loanRowColumns))

	loans, err := repo.ListByCustomer(ctx, 2)
	assert.NoError(t, err)
	assert.NotNil(t, loans)
	assert.Empty(t, loans)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestCreateLoanInTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	l := newTestLoan()
	l.LoanID = 0
	now := time.Now()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`INSERT INTO loans`).
		WithArgs(
			l.CustomerID, l.LoanAmount, l.Tenure, l.InterestRate,
			l.MonthlyInstallment, l.EMIsPaidOnTime, l.DateOfApproval, l.EndDate,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(11), now, now))

	tx, err := mockPool.Begin(ctx)
	assert.NoError(t, err)

	err = repo.CreateInTx(ctx, tx, l)
	assert.NoError(t, err)
	assert.Equal(t, int64(11), l.LoanID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpsertLoanInTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	l := newTestLoan()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO loans[\s\S]+ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(
			l.LoanID, l.CustomerID, l.LoanAmount, l.Tenure, l.InterestRate,
			l.MonthlyInstallment, l.EMIsPaidOnTime, l.DateOfApproval, l.EndDate,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mockPool.Begin(ctx)
	assert.NoError(t, err)

	err = repo.UpsertInTx(ctx, tx, l)
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestTransactionLifecycle(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectBegin()
	mockPool.ExpectCommit()

	tx, err := repo.BeginTx(ctx)
	assert.NoError(t, err)
	assert.NoError(t, repo.CommitTx(ctx, tx))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestRollbackTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectBegin()
	mockPool.ExpectRollback()

	tx, err := repo.BeginTx(ctx)
	assert.NoError(t, err)
	assert.NoError(t, repo.RollbackTx(ctx, tx))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}
