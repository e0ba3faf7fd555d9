package customer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("customer not found")

	ErrDuplicatePhoneNumber = errors.New("phone number already registered")
)

type Repository interface {
	Create(ctx context.Context, customer *Customer) error

	FindByID(ctx context.Context, customerID int64) (*Customer, error)

	// FindByIDForUpdateInTx locks the customer row for the lifetime of tx so
	// that concurrent loan originations against the same customer serialize.
	FindByIDForUpdateInTx(ctx context.Context, tx pgx.Tx, customerID int64) (*Customer, error)

	IncrementDebtInTx(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) error

	UpsertInTx(ctx context.Context, tx pgx.Tx, customer *Customer) error
}
