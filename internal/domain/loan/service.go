package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credit-engine/internal/domain/customer"
	"credit-engine/internal/event"
	"credit-engine/internal/infrastructure/monitoring"
	"credit-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

const msgLoanApproved = "Loan approved successfully."

// EligibilityResult is the eligibility verdict plus the echoed request
// parameters, as returned to the caller of CheckEligibility.
type EligibilityResult struct {
	CustomerID         int64
	Approved           bool
	RequestedRate      decimal.Decimal
	CorrectedRate      decimal.Decimal
	Tenure             int
	MonthlyInstallment decimal.Decimal
	Message            string
}

// OriginationResult reports the outcome of CreateLoan. LoanID and
// MonthlyInstallment are nil when the request was processed but rejected.
type OriginationResult struct {
	LoanID             *int64
	CustomerID         int64
	Approved           bool
	Message            string
	MonthlyInstallment *decimal.Decimal
}

// LoanDetail is a loan joined with a summary of its owning customer.
type LoanDetail struct {
	Loan     *Loan
	Customer *customer.Customer
}

type Service interface {
	CheckEligibility(ctx context.Context, customerID int64, amount, rate decimal.Decimal, tenure int) (*EligibilityResult, error)

	CreateLoan(ctx context.Context, customerID int64, amount, rate decimal.Decimal, tenure int) (*OriginationResult, error)

	GetLoanDetail(ctx context.Context, loanID int64) (*LoanDetail, error)

	ListCustomerLoans(ctx context.Context, customerID int64) ([]Loan, error)
}

var _ Service = (*loanService)(nil)

type loanService struct {
	repo            Repository
	customerRepo    customer.Repository
	customerService customer.Service
	pub             event.Publisher
	logger          *slog.Logger
	now             func() time.Time
}

func NewService(repo Repository, customerRepo customer.Repository, customerService customer.Service, pub event.Publisher, logger *slog.Logger) Service {
	if repo == nil || customerRepo == nil || customerService == nil {
		panic("loan service dependencies cannot be nil")
	}
	return &loanService{
		repo:            repo,
		customerRepo:    customerRepo,
		customerService: customerService,
		pub:             pub,
		logger:          logger.With(slog.String("component", "loanService")),
		now:             time.Now,
	}
}

func validateProposal(amount, rate decimal.Decimal, tenure int) error {
	if amount.Sign() <= 0 {
		return apperrors.NewValidationError("loan_amount", "must be greater than zero")
	}
	if rate.Sign() < 0 {
		return apperrors.NewValidationError("interest_rate", "cannot be negative")
	}
	if tenure <= 0 {
		return apperrors.NewValidationError("tenure", "must be a positive number of months")
	}
	return nil
}

func (s *loanService) CheckEligibility(ctx context.Context, customerID int64, amount, rate decimal.Decimal, tenure int) (*EligibilityResult, error) {
	s.logger.InfoContext(ctx, "Checking loan eligibility", slog.Int64("customerID", customerID))

	if err := validateProposal(amount, rate, tenure); err != nil {
		return nil, err
	}

	cust, err := s.customerService.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %d not found", apperrors.ErrNotFound, customerID)
		}
		return nil, fmt.Errorf("failed to fetch customer for eligibility check: %w", err)
	}

	history, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load loan history", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to load loan history for customer %d: %v", apperrors.ErrInternalServer, customerID, err)
	}

	decision := EvaluateEligibility(HistorySnapshot{
		Loans:         history,
		MonthlySalary: cust.MonthlySalary,
		ApprovedLimit: cust.ApprovedLimit,
		Today:         dateOf(s.now()),
	}, amount, rate, tenure)

	monitoring.RecordLoanDecision("check_eligibility", decisionOutcome(decision.Approved))
	s.logger.InfoContext(ctx, "Eligibility decision computed",
		slog.Int64("customerID", customerID),
		slog.Bool("approved", decision.Approved),
		slog.String("credit_score", decision.CreditScore.StringFixed(2)))

	return &EligibilityResult{
		CustomerID:         customerID,
		Approved:           decision.Approved,
		RequestedRate:      rate,
		CorrectedRate:      decision.CorrectedRate,
		Tenure:             tenure,
		MonthlyInstallment: decision.MonthlyInstallment,
		Message:            decision.Message,
	}, nil
}

func (s *loanService) CreateLoan(ctx context.Context, customerID int64, amount, rate decimal.Decimal, tenure int) (result *OriginationResult, err error) {
	s.logger.InfoContext(ctx, "Creating new loan", slog.Int64("customerID", customerID))

	if err := validateProposal(amount, rate, tenure); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Panic occurred during loan origination", slog.Any("error", p))
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		}
		if err != nil || result == nil || !result.Approved {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	// Row lock serializes concurrent originations for the same customer;
	// the history read below sees the state the decision will commit against.
	cust, err := s.customerRepo.FindByIDForUpdateInTx(ctx, tx, customerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Customer not found for loan creation", slog.Int64("customerID", customerID))
			return nil, fmt.Errorf("%w: customer %d not found", apperrors.ErrNotFound, customerID)
		}
		s.logger.ErrorContext(ctx, "Failed to lock customer row", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to fetch customer %d: %v", apperrors.ErrInternalServer, customerID, err)
	}

	history, err := s.repo.ListByCustomerInTx(ctx, tx, customerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load loan history in transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to load loan history for customer %d: %v", apperrors.ErrInternalServer, customerID, err)
	}

	today := dateOf(s.now())
	decision := EvaluateEligibility(HistorySnapshot{
		Loans:         history,
		MonthlySalary: cust.MonthlySalary,
		ApprovedLimit: cust.ApprovedLimit,
		Today:         today,
	}, amount, rate, tenure)

	monitoring.RecordLoanDecision("create_loan", decisionOutcome(decision.Approved))

	if !decision.Approved {
		s.logger.InfoContext(ctx, "Loan request rejected",
			slog.Int64("customerID", customerID), slog.String("reason", decision.Message))
		return &OriginationResult{
			CustomerID: customerID,
			Approved:   false,
			Message:    decision.Message,
		}, nil
	}

	newLoan, err := NewLoan(customerID, amount, tenure, decision.CorrectedRate, decision.MonthlyInstallment, today)
	if err != nil {
		return nil, fmt.Errorf("failed to build loan object: %w", err)
	}

	if err = s.repo.CreateInTx(ctx, tx, newLoan); err != nil {
		s.logger.ErrorContext(ctx, "Failed to insert loan", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to save loan: %v", apperrors.ErrInternalServer, err)
	}

	if err = s.customerRepo.IncrementDebtInTx(ctx, tx, customerID, amount); err != nil {
		s.logger.ErrorContext(ctx, "Failed to increment customer debt", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to update customer debt: %v", apperrors.ErrInternalServer, err)
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit loan origination", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrInternalServer, err)
	}

	s.publishApproved(ctx, newLoan, decision)
	s.logger.InfoContext(ctx, "Loan created successfully",
		slog.Int64("loanID", newLoan.LoanID), slog.Int64("customerID", customerID))

	installment := decision.MonthlyInstallment
	return &OriginationResult{
		LoanID:             &newLoan.LoanID,
		CustomerID:         customerID,
		Approved:           true,
		Message:            msgLoanApproved,
		MonthlyInstallment: &installment,
	}, nil
}

func (s *loanService) GetLoanDetail(ctx context.Context, loanID int64) (*LoanDetail, error) {
	s.logger.InfoContext(ctx, "Getting loan details", slog.Int64("loanID", loanID))

	l, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Loan not found", slog.Int64("loanID", loanID))
			return nil, fmt.Errorf("%w: loan %d not found", apperrors.ErrNotFound, loanID)
		}
		s.logger.ErrorContext(ctx, "Failed to get loan", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}

	cust, err := s.customerService.GetCustomer(ctx, l.CustomerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fetch owning customer for loan", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to fetch customer %d for loan %d: %v", apperrors.ErrInternalServer, l.CustomerID, loanID, err)
	}

	return &LoanDetail{Loan: l, Customer: cust}, nil
}

func (s *loanService) ListCustomerLoans(ctx context.Context, customerID int64) ([]Loan, error) {
	s.logger.InfoContext(ctx, "Listing customer loans", slog.Int64("customerID", customerID))

	if _, err := s.customerService.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %d not found", apperrors.ErrNotFound, customerID)
		}
		return nil, fmt.Errorf("failed to fetch customer %d: %w", customerID, err)
	}

	loans, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list loans", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to list loans for customer %d: %v", apperrors.ErrInternalServer, customerID, err)
	}

	return loans, nil
}

func (s *loanService) publishApproved(ctx context.Context, l *Loan, decision Decision) {
	if s.pub == nil {
		return
	}

	evt := event.LoanApprovedEvent{
		Timestamp: time.Now(),
		Payload: event.LoanPayload{
			LoanID:             l.LoanID,
			CustomerID:         l.CustomerID,
			LoanAmount:         l.LoanAmount.StringFixed(2),
			Tenure:             l.Tenure,
			InterestRate:       l.InterestRate.StringFixed(2),
			MonthlyInstallment: l.MonthlyInstallment.StringFixed(2),
			CreditScore:        decision.CreditScore.StringFixed(2),
		},
	}
	if err := s.pub.PublishLoanApproved(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "Loan approved, but FAILED to publish event", slog.Any("error", err))
	}
}

func decisionOutcome(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}
