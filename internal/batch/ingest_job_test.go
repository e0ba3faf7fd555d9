package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"credit-engine/internal/config"
	"credit-engine/internal/domain/customer"
	"credit-engine/internal/domain/loan"
	"credit-engine/internal/infrastructure/monitoring"
	"credit-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

type TxMock struct {
	pgx.Tx
}

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) FindByID(ctx context.Context, loanID int64) (*loan.Loan, error) {
	args := m.Called(ctx, loanID)
	if l, ok := args.Get(0).(*loan.Loan); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanRepository) ListByCustomer(ctx context.Context, customerID int64) ([]loan.Loan, error) {
	args := m.Called(ctx, customerID)
	if loans, ok := args.Get(0).([]loan.Loan); ok {
		return loans, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanRepository) ListByCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) ([]loan.Loan, error) {
	args := m.Called(ctx, tx, customerID)
	if loans, ok := args.Get(0).([]loan.Loan); ok {
		return loans, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanRepository) CreateInTx(ctx context.Context, tx pgx.Tx, l *loan.Loan) error {
	return m.Called(ctx, tx, l).Error(0)
}

func (m *MockLoanRepository) UpsertInTx(ctx context.Context, tx pgx.Tx, l *loan.Loan) error {
	return m.Called(ctx, tx, l).Error(0)
}

func (m *MockLoanRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockLoanRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	return m.Called(ctx, tx).Error(0)
}

type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) Create(ctx context.Context, cust *customer.Customer) error {
	return m.Called(ctx, cust).Error(0)
}

func (m *MockCustomerRepository) FindByID(ctx context.Context, customerID int64) (*customer.Customer, error) {
	args := m.Called(ctx, customerID)
	if cust, ok := args.Get(0).(*customer.Customer); ok {
		return cust, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCustomerRepository) FindByIDForUpdateInTx(ctx context.Context, tx pgx.Tx, customerID int64) (*customer.Customer, error) {
	args := m.Called(ctx, tx, customerID)
	if cust, ok := args.Get(0).(*customer.Customer); ok {
		return cust, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCustomerRepository) IncrementDebtInTx(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) error {
	return m.Called(ctx, tx, customerID, amount).Error(0)
}

func (m *MockCustomerRepository) UpsertInTx(ctx context.Context, tx pgx.Tx, cust *customer.Customer) error {
	return m.Called(ctx, tx, cust).Error(0)
}

const customerHeader = "Customer ID,First Name,Last Name,Age,Phone Number,Monthly Salary,Approved Limit\n"

const loanHeader = "Customer ID,Loan ID,Loan Amount,Tenure,Interest Rate,Monthly payment,EMIs paid on Time,Date of Approval,End Date\n"

func writeDataFiles(t *testing.T, customerRows, loanRows string) config.IngestConfig {
	t.Helper()
	dir := t.TempDir()

	customerFile := filepath.Join(dir, "customer_data.csv")
	assert.NoError(t, os.WriteFile(customerFile, []byte(customerHeader+customerRows), 0o644))

	loanFile := filepath.Join(dir, "loan_data.csv")
	assert.NoError(t, os.WriteFile(loanFile, []byte(loanHeader+loanRows), 0o644))

	return config.IngestConfig{CustomerFile: customerFile, LoanFile: loanFile}
}

func setupIngestJob(t *testing.T, cfg config.IngestConfig) (*IngestJob, *MockLoanRepository, *MockCustomerRepository) {
	t.Helper()
	mockLoanRepo := new(MockLoanRepository)
	mockCustomerRepo := new(MockCustomerRepository)
	job := NewIngestJob(mockLoanRepo, mockCustomerRepo, cfg, logger)
	return job, mockLoanRepo, mockCustomerRepo
}

func TestIngestJobLoadsBothFiles(t *testing.T) {
	ctx := context.Background()
	cfg := writeDataFiles(t,
		"1,Aarav,Sharma,28,9628837909,50000,1800000\n"+
			"2,Ishani,Desai,40,9143703403,75000,2700000\n",
		"1,101,300000,24,8.20,13585.08,20,01-01-2020,22-08-2021\n"+
			"2,102,900000,48,11.50,23482.10,10,05-03-2023,15-02-2027\n")
	job, mockLoanRepo, mockCustomerRepo := setupIngestJob(t, cfg)

	tx := &TxMock{}
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockCustomerRepo.On("UpsertInTx", ctx, tx, mock.AnythingOfType("*customer.Customer")).Return(nil).Twice()
	mockLoanRepo.On("UpsertInTx", ctx, tx, mock.AnythingOfType("*loan.Loan")).Return(nil).Twice()
	mockLoanRepo.On("CommitTx", ctx, tx).Return(nil).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil)

	report, err := job.Run(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 2, report.CustomersUpserted)
	assert.Equal(t, 2, report.LoansUpserted)
	assert.Empty(t, report.Skipped)
	mockLoanRepo.AssertExpectations(t)
	mockCustomerRepo.AssertExpectations(t)
}

func TestIngestJobSkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	cfg := writeDataFiles(t,
		"1,Aarav,Sharma,28,9628837909,50000,1800000\n"+
			"not-a-number,Broken,Row,0,0,abc,def\n",
		"1,101,300000,24,8.20,13585.08,20,2020-01-01,22-08-2021\n")
	job, mockLoanRepo, mockCustomerRepo := setupIngestJob(t, cfg)

	tx := &TxMock{}
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockCustomerRepo.On("UpsertInTx", ctx, tx, mock.AnythingOfType("*customer.Customer")).Return(nil).Once()
	mockLoanRepo.On("CommitTx", ctx, tx).Return(nil).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil)

	report, err := job.Run(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, report.CustomersUpserted)
	assert.Zero(t, report.LoansUpserted)
	assert.Len(t, report.Skipped, 2)
	assert.Equal(t, 3, report.Skipped[0].Line)
	mockLoanRepo.AssertNotCalled(t, "UpsertInTx", ctx, tx, mock.AnythingOfType("*loan.Loan"))
}

func TestIngestJobSkipsLoanForUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	cfg := writeDataFiles(t,
		"1,Aarav,Sharma,28,9628837909,50000,1800000\n",
		"99,101,300000,24,8.20,13585.08,20,01-01-2020,22-08-2021\n")
	job, mockLoanRepo, mockCustomerRepo := setupIngestJob(t, cfg)

	tx := &TxMock{}
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockCustomerRepo.On("UpsertInTx", ctx, tx, mock.AnythingOfType("*customer.Customer")).Return(nil).Once()
	mockCustomerRepo.On("FindByID", ctx, int64(99)).Return(nil, customer.ErrNotFound).Once()
	mockLoanRepo.On("CommitTx", ctx, tx).Return(nil).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil)

	report, err := job.Run(ctx)

	assert.NoError(t, err)
	assert.Zero(t, report.LoansUpserted)
	assert.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Err.Error(), "unknown customer 99")
	mockCustomerRepo.AssertExpectations(t)
}

func TestIngestJobIngestsLoanForExistingStoredCustomer(t *testing.T) {
	ctx := context.Background()
	cfg := writeDataFiles(t,
		"",
		"7,101,300000,24,8.20,13585.08,20,01-01-2020,22-08-2021\n")
	job, mockLoanRepo, mockCustomerRepo := setupIngestJob(t, cfg)

	tx := &TxMock{}
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockCustomerRepo.On("FindByID", ctx, int64(7)).Return(&customer.Customer{CustomerID: 7}, nil).Once()
	mockLoanRepo.On("UpsertInTx", ctx, tx, mock.AnythingOfType("*loan.Loan")).Return(nil).Once()
	mockLoanRepo.On("CommitTx", ctx, tx).Return(nil).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil)

	report, err := job.Run(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, report.LoansUpserted)
	mockCustomerRepo.AssertExpectations(t)
}

func TestIngestJobLabelsSkippedRowsByKind(t *testing.T) {
	ctx := context.Background()
	// Directory name deliberately contains "loan"; the row metrics still
	// count by the file's kind, not its path.
	dir := filepath.Join(t.TempDir(), "loan_imports")
	assert.NoError(t, os.MkdirAll(dir, 0o755))

	customerFile := filepath.Join(dir, "customers.csv")
	assert.NoError(t, os.WriteFile(customerFile, []byte(customerHeader+"bad,row,,,,,\n"), 0o644))
	loanFile := filepath.Join(dir, "loans.csv")
	assert.NoError(t, os.WriteFile(loanFile, []byte(loanHeader), 0o644))

	cfg := config.IngestConfig{CustomerFile: customerFile, LoanFile: loanFile}
	job, mockLoanRepo, _ := setupIngestJob(t, cfg)

	tx := &TxMock{}
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockLoanRepo.On("CommitTx", ctx, tx).Return(nil).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil)

	before := testutil.ToFloat64(monitoring.Business.IngestedRowsTotal.WithLabelValues("customer", "skipped"))

	report, err := job.Run(ctx)

	assert.NoError(t, err)
	assert.Len(t, report.Skipped, 1)
	assert.Equal(t, customerFile, report.Skipped[0].File)
	after := testutil.ToFloat64(monitoring.Business.IngestedRowsTotal.WithLabelValues("customer", "skipped"))
	assert.Equal(t, before+1, after)
}

func TestIngestJobAbortsWhenCustomerFileMissing(t *testing.T) {
	ctx := context.Background()
	cfg := config.IngestConfig{
		CustomerFile: filepath.Join(t.TempDir(), "missing.csv"),
		LoanFile:     filepath.Join(t.TempDir(), "also_missing.csv"),
	}
	job, mockLoanRepo, _ := setupIngestJob(t, cfg)

	tx := &TxMock{}
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil).Once()

	report, err := job.Run(ctx)

	assert.Nil(t, report)
	assert.True(t, errors.Is(err, apperrors.ErrIngestionFatal))
	mockLoanRepo.AssertNotCalled(t, "CommitTx", ctx, tx)
	mockLoanRepo.AssertExpectations(t)
}

func TestIngestJobAbortsOnStoreError(t *testing.T) {
	ctx := context.Background()
	cfg := writeDataFiles(t,
		"1,Aarav,Sharma,28,9628837909,50000,1800000\n",
		"")
	job, mockLoanRepo, mockCustomerRepo := setupIngestJob(t, cfg)

	tx := &TxMock{}
	storeErr := errors.New("connection reset")
	mockLoanRepo.On("BeginTx", ctx).Return(tx, nil).Once()
	mockCustomerRepo.On("UpsertInTx", ctx, tx, mock.AnythingOfType("*customer.Customer")).Return(storeErr).Once()
	mockLoanRepo.On("RollbackTx", ctx, tx).Return(nil).Once()

	report, err := job.Run(ctx)

	assert.Nil(t, report)
	assert.True(t, errors.Is(err, apperrors.ErrIngestionFatal))
	assert.True(t, errors.Is(err, storeErr))
	mockLoanRepo.AssertNotCalled(t, "CommitTx", ctx, tx)
}
