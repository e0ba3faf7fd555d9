package customer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// limitRoundingUnit is the granularity the approved credit limit is rounded
// up to when derived from monthly income.
var (
	limitRoundingUnit = decimal.NewFromInt(100_000)
	limitSalaryFactor = decimal.NewFromInt(36)
)

type Customer struct {
	CustomerID    int64
	FirstName     string
	LastName      string
	Age           int
	PhoneNumber   string
	MonthlySalary decimal.Decimal
	ApprovedLimit decimal.Decimal
	CurrentDebt   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Customer) Name() string {
	return fmt.Sprintf("%s %s", c.FirstName, c.LastName)
}

// NewCustomer builds an unsaved customer record. The approved limit is fixed
// here from the monthly income and never recomputed afterwards.
func NewCustomer(firstName, lastName string, age int, monthlyIncome decimal.Decimal, phoneNumber string) *Customer {
	return &Customer{
		FirstName:     firstName,
		LastName:      lastName,
		Age:           age,
		PhoneNumber:   phoneNumber,
		MonthlySalary: monthlyIncome,
		ApprovedLimit: ApprovedLimitFromIncome(monthlyIncome),
		CurrentDebt:   decimal.Zero,
	}
}

// ApprovedLimitFromIncome computes ceil(36 * income / 100000) * 100000.
func ApprovedLimitFromIncome(monthlyIncome decimal.Decimal) decimal.Decimal {
	return monthlyIncome.
		Mul(limitSalaryFactor).
		Div(limitRoundingUnit).
		Ceil().
		Mul(limitRoundingUnit)
}
