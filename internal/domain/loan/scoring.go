package loan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Credit score slab boundaries and the minimum interest rate enforced in
// each slab. Scores above slabUpper are approved at the requested rate;
// scores at or below slabFloor are rejected outright.
var (
	slabUpper    = decimal.NewFromInt(50)
	slabMiddle   = decimal.NewFromInt(30)
	slabFloor    = decimal.NewFromInt(10)
	minRateUpper = decimal.RequireFromString("12.00")
	minRateLower = decimal.RequireFromString("16.00")

	baseScore = decimal.NewFromInt(100)
	scoreMax  = decimal.NewFromInt(100)

	pointsPerLoanPaidOnTime = decimal.NewFromInt(5)
	pointsPerLoanTaken      = decimal.NewFromInt(5)
	pointsPerCurrentYear    = decimal.NewFromInt(3)
	volumeAdjustmentScale   = decimal.NewFromInt(10)

	two     = decimal.NewFromInt(2)
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

const (
	msgEMIBurden     = "Loan not approved. Sum of current EMIs exceeds 50% of monthly salary."
	msgLowScore      = "Loan not approved due to low credit score (below 10)."
	msgExceedsLimit  = "Loan not approved. Requested loan amount exceeds customer's approved limit."
	msgRateCorrected = "Interest rate corrected to %s%% (minimum for this credit score slab)."
)

// HistorySnapshot is everything the scoring engine needs, captured at one
// point in time. Callers fetching inside a transaction must build the
// snapshot from that same transaction's reads.
type HistorySnapshot struct {
	Loans         []Loan
	MonthlySalary decimal.Decimal
	ApprovedLimit decimal.Decimal
	Today         time.Time
}

// Decision is the scoring engine's verdict. A rejection is a normal value,
// not an error.
type Decision struct {
	Approved           bool
	Message            string
	CreditScore        decimal.Decimal
	CorrectedRate      decimal.Decimal
	MonthlyInstallment decimal.Decimal
}

// EvaluateEligibility runs the full eligibility computation for a proposed
// loan against a customer's loan history snapshot. It is a pure function:
// identical snapshots and inputs always yield identical decisions.
func EvaluateEligibility(snap HistorySnapshot, amount, requestedRate decimal.Decimal, tenure int) Decision {
	activeEMISum := decimal.Zero
	activeVolume := decimal.Zero
	for i := range snap.Loans {
		if snap.Loans[i].IsActive(snap.Today) {
			activeEMISum = activeEMISum.Add(snap.Loans[i].MonthlyInstallment)
			activeVolume = activeVolume.Add(snap.Loans[i].LoanAmount)
		}
	}

	// Hard gate: current EMI burden above half the salary ends the
	// evaluation before any score is computed.
	if activeEMISum.Cmp(snap.MonthlySalary.Div(two)) > 0 {
		return Decision{
			Approved:           false,
			Message:            msgEMIBurden,
			CorrectedRate:      requestedRate,
			MonthlyInstallment: decimal.Zero,
		}
	}

	score := creditScore(snap, activeVolume)

	approved := false
	correctedRate := requestedRate
	message := ""

	switch {
	case score.Cmp(slabUpper) > 0:
		approved = true
	case score.Cmp(slabMiddle) > 0:
		approved = true
		if correctedRate.Cmp(minRateUpper) < 0 {
			correctedRate = minRateUpper
			message = fmt.Sprintf(msgRateCorrected, correctedRate.StringFixed(2))
		}
	case score.Cmp(slabFloor) > 0:
		approved = true
		if correctedRate.Cmp(minRateLower) < 0 {
			correctedRate = minRateLower
			message = fmt.Sprintf(msgRateCorrected, correctedRate.StringFixed(2))
		}
	default:
		approved = false
		message = msgLowScore
	}

	// The absolute limit check wins over any score-based approval. It is
	// evaluated independently of the zero-score volume path above.
	if amount.Cmp(snap.ApprovedLimit) > 0 {
		approved = false
		message = msgExceedsLimit
	}

	installment := decimal.Zero
	if approved {
		installment = MonthlyInstallment(amount, correctedRate, tenure)
	}

	return Decision{
		Approved:           approved,
		Message:            message,
		CreditScore:        score,
		CorrectedRate:      correctedRate,
		MonthlyInstallment: installment,
	}
}

// creditScore computes the clamped 0..100 score from the loan history.
func creditScore(snap HistorySnapshot, activeVolume decimal.Decimal) decimal.Decimal {
	score := baseScore

	today := dateOf(snap.Today)
	closedPaidOnTime := int64(0)
	currentYearLoans := int64(0)
	for i := range snap.Loans {
		l := &snap.Loans[i]
		if l.PaidFullyOnTime() && l.EndDate.Before(today) {
			closedPaidOnTime++
		}
		if l.DateOfApproval.Year() == snap.Today.Year() {
			currentYearLoans++
		}
	}

	score = score.Add(pointsPerLoanPaidOnTime.Mul(decimal.NewFromInt(closedPaidOnTime)))
	score = score.Sub(pointsPerLoanTaken.Mul(decimal.NewFromInt(int64(len(snap.Loans)))))
	score = score.Add(pointsPerCurrentYear.Mul(decimal.NewFromInt(currentYearLoans)))

	if activeVolume.Cmp(snap.ApprovedLimit) > 0 {
		// Over-extended customers score zero no matter what else happened.
		score = decimal.Zero
	} else if snap.ApprovedLimit.Sign() > 0 {
		ratio := activeVolume.Div(snap.ApprovedLimit)
		score = score.Add(decimal.NewFromInt(volumeAdjustmentScale.Mul(ratio).IntPart()))
	}

	if score.Sign() < 0 {
		return decimal.Zero
	}
	if score.Cmp(scoreMax) > 0 {
		return scoreMax
	}
	return score
}

// MonthlyInstallment computes the amortizing EMI for the given principal,
// annual percentage rate and tenure in months, rounded half to even at
// 2 decimal places.
// A zero effective rate degrades to straight division.
func MonthlyInstallment(amount, annualRate decimal.Decimal, tenure int) decimal.Decimal {
	monthlyRate := annualRate.Div(twelve).Div(hundred)
	if monthlyRate.Sign() == 0 {
		return amount.Div(decimal.NewFromInt(int64(tenure))).RoundBank(2)
	}

	// amount * r / (1 - (1+r)^-n)
	growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(decimal.NewFromInt(int64(tenure)))
	denominator := decimal.NewFromInt(1).Sub(decimal.NewFromInt(1).Div(growth))
	return amount.Mul(monthlyRate).Div(denominator).RoundBank(2)
}
