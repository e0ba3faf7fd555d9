package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"credit-engine/internal/domain/customer"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

const pgxmockExpectationsNotMetMsg = "there were unfulfilled expectations"

func newTestCustomer() *customer.Customer {
	return &customer.Customer{
		CustomerID:    1,
		FirstName:     "Asha",
		LastName:      "Rao",
		Age:           32,
		PhoneNumber:   "9876543210",
		MonthlySalary: decimal.RequireFromString("100000"),
		ApprovedLimit: decimal.RequireFromString("3600000"),
		CurrentDebt:   decimal.Zero,
	}
}

func setupCustomerRepo(t *testing.T) (context.Context, *CustomerRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewCustomerRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func TestCreateCustomerWhenSuccess(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := newTestCustomer()
	cust.CustomerID = 0
	now := time.Now()

	mockPool.ExpectQuery(`INSERT INTO customers`).WithArgs(
		cust.FirstName,
		cust.LastName,
		cust.Age,
		cust.PhoneNumber,
		cust.MonthlySalary,
		cust.ApprovedLimit,
		cust.CurrentDebt,
	).WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
		AddRow(int64(7), now, now))

	err := repo.Create(ctx, cust)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), cust.CustomerID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestCreateCustomerWhenPhoneAlreadyRegistered(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := newTestCustomer()
	cust.CustomerID = 0

	mockPool.ExpectQuery(`INSERT INTO customers`).WithArgs(
		cust.FirstName,
		cust.LastName,
		cust.Age,
		cust.PhoneNumber,
		cust.MonthlySalary,
		cust.ApprovedLimit,
		cust.CurrentDebt,
	).WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "customers_phone_number_key"})

	err := repo.Create(ctx, cust)
	assert.True(t, errors.Is(err, customer.ErrDuplicatePhoneNumber))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestFindCustomerByIDReturnOne(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := newTestCustomer()
	now := time.Now()

	mockPool.ExpectQuery(`SELECT .+\s+FROM customers\s+WHERE id = \$1`).
		WithArgs(cust.CustomerID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "first_name", "last_name", "age", "phone_number",
			"monthly_salary", "approved_limit", "current_debt", "created_at", "updated_at",
		}).AddRow(
			cust.CustomerID, cust.FirstName, cust.LastName, cust.Age, cust.PhoneNumber,
			cust.MonthlySalary, cust.ApprovedLimit, cust.CurrentDebt, now, now,
		))

	found, err := repo.FindByID(ctx, cust.CustomerID)
	assert.NoError(t, err)
	assert.Equal(t, cust.FirstName, found.FirstName)
	assert.True(t, found.ApprovedLimit.Equal(cust.ApprovedLimit))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestFindCustomerByIDWhenMissing(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT .+\s+FROM customers\s+WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "first_name", "last_name", "age", "phone_number",
			"monthly_salary", "approved_limit", "current_debt", "created_at", "updated_at",
		}))

	_, err := repo.FindByID(ctx, 404)
	assert.True(t, errors.Is(err, customer.ErrNotFound))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestFindCustomerByIDForUpdateLocksRow(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := newTestCustomer()
	now := time.Now()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`SELECT .+\s+FROM customers\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(cust.CustomerID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "first_name", "last_name", "age", "phone_number",
			"monthly_salary", "approved_limit", "current_debt", "created_at", "updated_at",
		}).AddRow(
			cust.CustomerID, cust.FirstName, cust.LastName, cust.Age, cust.PhoneNumber,
			cust.MonthlySalary, cust.ApprovedLimit, cust.CurrentDebt, now, now,
		))

	tx, err := mockPool.Begin(ctx)
	assert.NoError(t, err)

	found, err := repo.FindByIDForUpdateInTx(ctx, tx, cust.CustomerID)
	assert.NoError(t, err)
	assert.Equal(t, cust.CustomerID, found.CustomerID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestIncrementDebtInTx(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	amount := decimal.RequireFromString("500000")

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE customers\s+SET current_debt = current_debt \+ \$1`).
		WithArgs(amount, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mockPool.Begin(ctx)
	assert.NoError(t, err)

	err = repo.IncrementDebtInTx(ctx, tx, 1, amount)
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestIncrementDebtInTxWhenCustomerMissing(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	amount := decimal.RequireFromString("500000")

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE customers\s+SET current_debt = current_debt \+ \$1`).
		WithArgs(amount, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mockPool.Begin(ctx)
	assert.NoError(t, err)

	err = repo.IncrementDebtInTx(ctx, tx, 99, amount)
	assert.True(t, errors.Is(err, customer.ErrNotFound))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpsertCustomerInTx(t *testing.T) {
	ctx, repo, mockPool := setupCustomerRepo(t)
	defer mockPool.Close()

	cust := newTestCustomer()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO customers[\s\S]+ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(
			cust.CustomerID, cust.FirstName, cust.LastName, cust.Age, cust.PhoneNumber,
			cust.MonthlySalary, cust.ApprovedLimit, cust.CurrentDebt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mockPool.Begin(ctx)
	assert.NoError(t, err)

	err = repo.UpsertInTx(ctx, tx, cust)
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}
