package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"credit-engine/internal/event"
	"credit-engine/internal/infrastructure/monitoring"
	"credit-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type Service interface {
	RegisterCustomer(ctx context.Context, firstName, lastName string, age int, monthlyIncome decimal.Decimal, phoneNumber string) (*Customer, error)

	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)
}

var _ Service = (*customerService)(nil)

type customerService struct {
	repo   Repository
	pub    event.Publisher
	logger *slog.Logger
}

func NewService(repo Repository, pub event.Publisher, logger *slog.Logger) Service {
	if repo == nil {
		panic("customer repository cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewService, using default stderr handler")
	}

	return &customerService{
		repo:   repo,
		pub:    pub,
		logger: logger.With(slog.String("component", "customerService")),
	}
}

func (s *customerService) RegisterCustomer(ctx context.Context, firstName, lastName string, age int, monthlyIncome decimal.Decimal, phoneNumber string) (*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to register new customer")

	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	phoneNumber = strings.TrimSpace(phoneNumber)

	if firstName == "" {
		return nil, apperrors.NewValidationError("first_name", "cannot be empty")
	}
	if lastName == "" {
		return nil, apperrors.NewValidationError("last_name", "cannot be empty")
	}
	if age <= 0 {
		return nil, apperrors.NewValidationError("age", "must be a positive integer")
	}
	if monthlyIncome.Sign() <= 0 {
		return nil, apperrors.NewValidationError("monthly_income", "must be greater than zero")
	}
	if phoneNumber == "" {
		return nil, apperrors.NewValidationError("phone_number", "cannot be empty")
	}
	s.logger.InfoContext(ctx, "Input validation passed")

	cust := NewCustomer(firstName, lastName, age, monthlyIncome, phoneNumber)
	s.logger.InfoContext(ctx, "Customer domain object created",
		slog.String("approved_limit", cust.ApprovedLimit.StringFixed(2)))

	if err := s.repo.Create(ctx, cust); err != nil {
		if errors.Is(err, ErrDuplicatePhoneNumber) {
			s.logger.WarnContext(ctx, "Phone number already registered", slog.String("phone", phoneNumber))
			return nil, fmt.Errorf("%w: %v", apperrors.ErrAlreadyExists, err)
		}
		s.logger.ErrorContext(ctx, "Repository failed to save new customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save new customer: %w", err)
	}

	monitoring.RecordCustomerRegistered()
	s.publishRegistered(ctx, cust)

	s.logger.InfoContext(ctx, "Successfully registered new customer", slog.Int64("customerID", cust.CustomerID))
	return cust, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID int64) (*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to get customer by ID", slog.Int64("customerID", customerID))

	cust, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "Customer not found by repository", slog.Int64("customerID", customerID))
			return nil, fmt.Errorf("%w: %w", apperrors.ErrNotFound, ErrNotFound)
		}
		s.logger.ErrorContext(ctx, "Repository error finding customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get customer %d: %w", customerID, err)
	}

	return cust, nil
}

func (s *customerService) publishRegistered(ctx context.Context, cust *Customer) {
	if s.pub == nil {
		return
	}

	evt := event.CustomerRegisteredEvent{
		Timestamp: time.Now(),
		Payload: event.CustomerPayload{
			CustomerID:    cust.CustomerID,
			Name:          cust.Name(),
			Age:           cust.Age,
			PhoneNumber:   cust.PhoneNumber,
			MonthlySalary: cust.MonthlySalary.StringFixed(2),
			ApprovedLimit: cust.ApprovedLimit.StringFixed(2),
		},
	}
	if err := s.pub.PublishCustomerRegistered(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "Customer registered, but FAILED to publish event", slog.Any("error", err))
	} else {
		s.logger.InfoContext(ctx, "Successfully published customer registered event")
	}
}
