package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"credit-engine/internal/config"
	"credit-engine/internal/domain/customer"
	"credit-engine/internal/domain/loan"
	"credit-engine/internal/infrastructure/monitoring"
	"credit-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ingestDateLayout matches the DD-MM-YYYY dates carried by the historical
// data exports.
const ingestDateLayout = "02-01-2006"

// SkippedRow records a single rejected line of an ingestion file. Skipped
// rows never abort the run.
type SkippedRow struct {
	File string
	Line int
	Err  error
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	CustomersUpserted int
	LoansUpserted     int
	Skipped           []SkippedRow
}

// IngestJob loads the historical customer and loan exports into the store.
// The whole run executes inside a single transaction so a partial load is
// never visible.
type IngestJob struct {
	loanRepo     loan.Repository
	customerRepo customer.Repository
	cfg          config.IngestConfig
	logger       *slog.Logger
}

func NewIngestJob(loanRepo loan.Repository, customerRepo customer.Repository, cfg config.IngestConfig, logger *slog.Logger) *IngestJob {
	if loanRepo == nil || customerRepo == nil || logger == nil {
		panic("IngestJob dependencies cannot be nil")
	}
	return &IngestJob{
		loanRepo:     loanRepo,
		customerRepo: customerRepo,
		cfg:          cfg,
		logger:       logger.With("job", "Ingest"),
	}
}

func (j *IngestJob) Run(ctx context.Context) (*IngestReport, error) {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting historical data ingestion.",
		slog.String("customer_file", j.cfg.CustomerFile),
		slog.String("loan_file", j.cfg.LoanFile))

	tx, err := j.loanRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot begin ingestion transaction: %w", apperrors.ErrIngestionFatal, err)
	}
	defer func() {
		_ = j.loanRepo.RollbackTx(ctx, tx)
	}()

	report := &IngestReport{}
	knownCustomers := make(map[int64]bool)

	if err := j.ingestCustomers(ctx, tx, report, knownCustomers); err != nil {
		return nil, err
	}
	if err := j.ingestLoans(ctx, tx, report, knownCustomers); err != nil {
		return nil, err
	}

	if err := j.loanRepo.CommitTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: cannot commit ingestion transaction: %w", apperrors.ErrIngestionFatal, err)
	}

	j.logger.InfoContext(ctx, "Historical data ingestion finished.",
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("customers_upserted", report.CustomersUpserted),
		slog.Int("loans_upserted", report.LoansUpserted),
		slog.Int("rows_skipped", len(report.Skipped)))
	return report, nil
}

func (j *IngestJob) ingestCustomers(ctx context.Context, tx pgx.Tx, report *IngestReport, known map[int64]bool) error {
	return j.ingestFile(ctx, j.cfg.CustomerFile, func(line int, record []string) error {
		cust, err := parseCustomerRow(record)
		if err != nil {
			j.skipRow(ctx, report, "customer", j.cfg.CustomerFile, line, err)
			return nil
		}
		if err := j.customerRepo.UpsertInTx(ctx, tx, cust); err != nil {
			return fmt.Errorf("%w: upserting customer %d: %w", apperrors.ErrIngestionFatal, cust.CustomerID, err)
		}
		known[cust.CustomerID] = true
		report.CustomersUpserted++
		monitoring.RecordIngestedRow("customer", "ok")
		return nil
	})
}

func (j *IngestJob) ingestLoans(ctx context.Context, tx pgx.Tx, report *IngestReport, known map[int64]bool) error {
	return j.ingestFile(ctx, j.cfg.LoanFile, func(line int, record []string) error {
		l, err := parseLoanRow(record)
		if err != nil {
			j.skipRow(ctx, report, "loan", j.cfg.LoanFile, line, err)
			return nil
		}
		if !known[l.CustomerID] {
			exists, err := j.customerExists(ctx, l.CustomerID)
			if err != nil {
				return err
			}
			if !exists {
				j.skipRow(ctx, report, "loan", j.cfg.LoanFile, line,
					fmt.Errorf("loan %d references unknown customer %d", l.LoanID, l.CustomerID))
				return nil
			}
			known[l.CustomerID] = true
		}
		if err := j.loanRepo.UpsertInTx(ctx, tx, l); err != nil {
			return fmt.Errorf("%w: upserting loan %d: %w", apperrors.ErrIngestionFatal, l.LoanID, err)
		}
		report.LoansUpserted++
		monitoring.RecordIngestedRow("loan", "ok")
		return nil
	})
}

// customerExists resolves loan rows whose customer predates this run and is
// already in the store.
func (j *IngestJob) customerExists(ctx context.Context, customerID int64) (bool, error) {
	_, err := j.customerRepo.FindByID(ctx, customerID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, customer.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("%w: looking up customer %d: %w", apperrors.ErrIngestionFatal, customerID, err)
}

func (j *IngestJob) ingestFile(ctx context.Context, path string, handleRow func(line int, record []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %w", apperrors.ErrIngestionFatal, path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrIngestionFatal, err)
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", apperrors.ErrIngestionFatal, path, err)
		}
		line++
		if line == 1 {
			// Header row.
			continue
		}
		if err := handleRow(line, record); err != nil {
			return err
		}
	}
}

func (j *IngestJob) skipRow(ctx context.Context, report *IngestReport, label, file string, line int, err error) {
	j.logger.WarnContext(ctx, "Skipping malformed ingestion row.",
		slog.String("file", file), slog.Int("line", line), slog.Any("error", err))
	report.Skipped = append(report.Skipped, SkippedRow{File: file, Line: line, Err: err})
	monitoring.RecordIngestedRow(label, "skipped")
}

// Customer export header:
// Customer ID, First Name, Last Name, Age, Phone Number, Monthly Salary, Approved Limit
func parseCustomerRow(record []string) (*customer.Customer, error) {
	if len(record) < 7 {
		return nil, fmt.Errorf("expected 7 columns, got %d", len(record))
	}

	id, err := parseID(record[0], "customer id")
	if err != nil {
		return nil, err
	}
	age, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil || age <= 0 {
		return nil, fmt.Errorf("invalid age %q", record[3])
	}
	salary, err := parseAmount(record[5], "monthly salary")
	if err != nil {
		return nil, err
	}
	limit, err := parseAmount(record[6], "approved limit")
	if err != nil {
		return nil, err
	}

	return &customer.Customer{
		CustomerID:    id,
		FirstName:     strings.TrimSpace(record[1]),
		LastName:      strings.TrimSpace(record[2]),
		Age:           age,
		PhoneNumber:   strings.TrimSpace(record[4]),
		MonthlySalary: salary,
		ApprovedLimit: limit,
		CurrentDebt:   decimal.Zero,
	}, nil
}

// Loan export header:
// Customer ID, Loan ID, Loan Amount, Tenure, Interest Rate, Monthly payment,
// EMIs paid on Time, Date of Approval, End Date
func parseLoanRow(record []string) (*loan.Loan, error) {
	if len(record) < 9 {
		return nil, fmt.Errorf("expected 9 columns, got %d", len(record))
	}

	customerID, err := parseID(record[0], "customer id")
	if err != nil {
		return nil, err
	}
	loanID, err := parseID(record[1], "loan id")
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(record[2], "loan amount")
	if err != nil {
		return nil, err
	}
	tenure, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil || tenure <= 0 {
		return nil, fmt.Errorf("invalid tenure %q", record[3])
	}
	rate, err := parseAmount(record[4], "interest rate")
	if err != nil {
		return nil, err
	}
	installment, err := parseAmount(record[5], "monthly payment")
	if err != nil {
		return nil, err
	}
	emisPaid, err := strconv.Atoi(strings.TrimSpace(record[6]))
	if err != nil || emisPaid < 0 {
		return nil, fmt.Errorf("invalid EMIs paid on time %q", record[6])
	}
	approval, err := time.Parse(ingestDateLayout, strings.TrimSpace(record[7]))
	if err != nil {
		return nil, fmt.Errorf("invalid date of approval %q", record[7])
	}
	end, err := time.Parse(ingestDateLayout, strings.TrimSpace(record[8]))
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q", record[8])
	}

	return &loan.Loan{
		LoanID:             loanID,
		CustomerID:         customerID,
		LoanAmount:         amount,
		Tenure:             tenure,
		InterestRate:       rate,
		MonthlyInstallment: installment,
		EMIsPaidOnTime:     emisPaid,
		DateOfApproval:     approval,
		EndDate:            end,
	}, nil
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", field, raw)
	}
	return id, nil
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q", field, raw)
	}
	if d.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%s cannot be negative", field)
	}
	return d, nil
}
