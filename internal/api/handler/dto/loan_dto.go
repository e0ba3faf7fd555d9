package dto

import (
	"fmt"

	"credit-engine/internal/domain/loan"

	"github.com/shopspring/decimal"
)

type LoanProposalRequest struct {
	CustomerID   int64           `json:"customer_id"`
	LoanAmount   decimal.Decimal `json:"loan_amount"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Tenure       int             `json:"tenure"`
}

func (r *LoanProposalRequest) Validate() error {
	if r.CustomerID <= 0 {
		return fmt.Errorf("customer_id must be a positive number")
	}
	if r.LoanAmount.Sign() <= 0 {
		return fmt.Errorf("loan_amount must be greater than zero")
	}
	if r.InterestRate.Sign() < 0 {
		return fmt.Errorf("interest_rate cannot be negative")
	}
	if r.Tenure <= 0 {
		return fmt.Errorf("tenure must be a positive number of months")
	}
	return nil
}

type EligibilityResponse struct {
	CustomerID            int64           `json:"customer_id"`
	Approval              bool            `json:"approval"`
	InterestRate          decimal.Decimal `json:"interest_rate"`
	CorrectedInterestRate decimal.Decimal `json:"corrected_interest_rate"`
	Tenure                int             `json:"tenure"`
	MonthlyInstallment    decimal.Decimal `json:"monthly_installment"`
	Message               string          `json:"message,omitempty"`
}

func NewEligibilityResponse(result *loan.EligibilityResult) EligibilityResponse {
	if result == nil {
		return EligibilityResponse{}
	}

	return EligibilityResponse{
		CustomerID:            result.CustomerID,
		Approval:              result.Approved,
		InterestRate:          result.RequestedRate,
		CorrectedInterestRate: result.CorrectedRate,
		Tenure:                result.Tenure,
		MonthlyInstallment:    result.MonthlyInstallment,
		Message:               result.Message,
	}
}

type CreateLoanResponse struct {
	LoanID             *int64           `json:"loan_id"`
	CustomerID         int64            `json:"customer_id"`
	LoanApproved       bool             `json:"loan_approved"`
	Message            string           `json:"message"`
	MonthlyInstallment *decimal.Decimal `json:"monthly_installment"`
}

func NewCreateLoanResponse(result *loan.OriginationResult) CreateLoanResponse {
	if result == nil {
		return CreateLoanResponse{}
	}

	return CreateLoanResponse{
		LoanID:             result.LoanID,
		CustomerID:         result.CustomerID,
		LoanApproved:       result.Approved,
		Message:            result.Message,
		MonthlyInstallment: result.MonthlyInstallment,
	}
}

type LoanDetailResponse struct {
	LoanID             int64           `json:"loan_id"`
	Customer           CustomerSummary `json:"customer"`
	LoanAmount         decimal.Decimal `json:"loan_amount"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	MonthlyInstallment decimal.Decimal `json:"monthly_installment"`
	Tenure             int             `json:"tenure"`
	LoanApproved       bool            `json:"loan_approved"`
}

func NewLoanDetailResponse(detail *loan.LoanDetail) LoanDetailResponse {
	if detail == nil || detail.Loan == nil {
		return LoanDetailResponse{}
	}

	return LoanDetailResponse{
		LoanID:             detail.Loan.LoanID,
		Customer:           NewCustomerSummary(detail.Customer),
		LoanAmount:         detail.Loan.LoanAmount,
		InterestRate:       detail.Loan.InterestRate,
		MonthlyInstallment: detail.Loan.MonthlyInstallment,
		Tenure:             detail.Loan.Tenure,
		LoanApproved:       detail.Loan.LoanID > 0,
	}
}

type CustomerLoanItem struct {
	LoanID             int64           `json:"loan_id"`
	LoanAmount         decimal.Decimal `json:"loan_amount"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	MonthlyInstallment decimal.Decimal `json:"monthly_installment"`
	RepaymentsLeft     int             `json:"repayments_left"`
}

func NewCustomerLoanList(loans []loan.Loan) []CustomerLoanItem {
	items := make([]CustomerLoanItem, 0, len(loans))
	for _, l := range loans {
		items = append(items, CustomerLoanItem{
			LoanID:             l.LoanID,
			LoanAmount:         l.LoanAmount,
			InterestRate:       l.InterestRate,
			MonthlyInstallment: l.MonthlyInstallment,
			RepaymentsLeft:     l.RepaymentsLeft(),
		})
	}
	return items
}
