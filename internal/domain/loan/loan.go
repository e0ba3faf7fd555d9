package loan

import (
	"fmt"
	"time"

	"credit-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// DaysPerTenureMonth is the fixed month length used when deriving a loan's
// end date from its tenure.
const DaysPerTenureMonth = 30

type Loan struct {
	LoanID             int64
	CustomerID         int64
	LoanAmount         decimal.Decimal
	Tenure             int
	InterestRate       decimal.Decimal
	MonthlyInstallment decimal.Decimal
	EMIsPaidOnTime     int
	DateOfApproval     time.Time
	EndDate            time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewLoan builds an unsaved, already-approved loan. The caller supplies the
// corrected rate and the installment computed by the scoring engine.
func NewLoan(customerID int64, amount decimal.Decimal, tenure int, rate, installment decimal.Decimal, approvalDate time.Time) (*Loan, error) {
	if tenure <= 0 {
		return nil, fmt.Errorf("%w: tenure must be positive", apperrors.ErrInvalidArgument)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: loan amount must be greater than zero", apperrors.ErrInvalidArgument)
	}
	if approvalDate.IsZero() {
		approvalDate = time.Now()
	}
	approvalDate = dateOf(approvalDate)

	return &Loan{
		CustomerID:         customerID,
		LoanAmount:         amount,
		Tenure:             tenure,
		InterestRate:       rate,
		MonthlyInstallment: installment,
		EMIsPaidOnTime:     0,
		DateOfApproval:     approvalDate,
		EndDate:            approvalDate.AddDate(0, 0, DaysPerTenureMonth*tenure),
	}, nil
}

// dateOf strips the clock time so loans are compared by calendar date.
// End dates are stored at midnight; a raw wall clock would misclassify a
// loan on its final day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsActive reports whether the loan is still being repaid as of today:
// not all EMIs are paid and the end date has not passed. A loan whose end
// date equals today's date is still active.
func (l *Loan) IsActive(today time.Time) bool {
	return l.EMIsPaidOnTime < l.Tenure && !l.EndDate.Before(dateOf(today))
}

// RepaymentsLeft is the number of EMIs still owed, never negative.
func (l *Loan) RepaymentsLeft() int {
	if left := l.Tenure - l.EMIsPaidOnTime; left > 0 {
		return left
	}
	return 0
}

// PaidFullyOnTime reports whether every EMI was paid on schedule. Only
// meaningful for closed loans; the scoring engine checks closure separately.
func (l *Loan) PaidFullyOnTime() bool {
	return l.EMIsPaidOnTime >= l.Tenure
}
