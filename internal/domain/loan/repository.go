package loan

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("loan not found")

type Repository interface {
	FindByID(ctx context.Context, loanID int64) (*Loan, error)

	ListByCustomer(ctx context.Context, customerID int64) ([]Loan, error)

	// ListByCustomerInTx reads the loan history inside tx so the scoring
	// snapshot is consistent with the origination transaction.
	ListByCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) ([]Loan, error)

	CreateInTx(ctx context.Context, tx pgx.Tx, loan *Loan) error

	UpsertInTx(ctx context.Context, tx pgx.Tx, loan *Loan) error

	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error
}
