package event

import "time"

type CustomerPayload struct {
	CustomerID    int64  `json:"customerId"`
	Name          string `json:"name"`
	Age           int    `json:"age"`
	PhoneNumber   string `json:"phoneNumber"`
	MonthlySalary string `json:"monthlySalary"`
	ApprovedLimit string `json:"approvedLimit"`
}

type CustomerRegisteredEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Payload   CustomerPayload `json:"payload"`
}

type LoanPayload struct {
	LoanID             int64  `json:"loanId"`
	CustomerID         int64  `json:"customerId"`
	LoanAmount         string `json:"loanAmount"`
	Tenure             int    `json:"tenure"`
	InterestRate       string `json:"interestRate"`
	MonthlyInstallment string `json:"monthlyInstallment"`
	CreditScore        string `json:"creditScore"`
}

type LoanApprovedEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Payload   LoanPayload `json:"payload"`
}
