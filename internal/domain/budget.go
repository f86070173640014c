package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Budgets
// ============================================================

const (
	// BudgetAlertThresholdPct is the usage at or above which an alert is sent.
	BudgetAlertThresholdPct = 80
	// BudgetWarningPct switches the alert email to its "close to exceeding" variant.
	BudgetWarningPct = 90
)

// Budget is a user's monthly spending allowance, evaluated against the
// user's default account.
type Budget struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	LastAlertSent *time.Time      `json:"lastAlertSent"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// UpdateBudgetRequest is the payload of PUT /v1/budget.
type UpdateBudgetRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BudgetAlertTarget is a budget joined with its owner and the owner's
// default account. DefaultAccount is nil when the user has none.
type BudgetAlertTarget struct {
	Budget         Budget
	User           User
	DefaultAccount *Account
}

// BudgetProgress is the current-month view of a budget.
type BudgetProgress struct {
	Budget         *Budget         `json:"budget"`
	AccountID      string          `json:"accountId,omitempty"`
	CurrentExpense decimal.Decimal `json:"currentExpenses"`
	PercentageUsed float64         `json:"percentageUsed"`
}

// StartOfMonth returns UTC midnight of the first day of now's month.
func StartOfMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// IsNewMonth reports whether last and now fall in different (month, year) pairs, in UTC.
func IsNewMonth(last, now time.Time) bool {
	last, now = last.UTC(), now.UTC()
	return last.Month() != now.Month() || last.Year() != now.Year()
}

// PercentageUsed returns total/amount*100. ok is false when amount is not
// positive, in which case there is no meaningful percentage.
func PercentageUsed(total, amount decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if !amount.IsPositive() {
		return decimal.Zero, false
	}
	return total.Div(amount).Mul(decimal.NewFromInt(100)), true
}

var alertThreshold = decimal.NewFromInt(BudgetAlertThresholdPct)

// BelowAlertThreshold reports whether pct is under the alert threshold.
func BelowAlertThreshold(pct decimal.Decimal) bool {
	return pct.LessThan(alertThreshold)
}

// ShouldAlert is the sole alert gate: usage at or above the threshold and no
// alert sent yet in the current calendar month.
func ShouldAlert(pct decimal.Decimal, lastAlertSent *time.Time, now time.Time) bool {
	if BelowAlertThreshold(pct) {
		return false
	}
	return lastAlertSent == nil || IsNewMonth(*lastAlertSent, now)
}

// ============================================================
// Sweep reporting
// ============================================================

// AlertOutcome is what happened to one budget during a sweep.
type AlertOutcome string

const (
	OutcomeNoDefaultAccount AlertOutcome = "no_default_account"
	OutcomeInvalidBudget    AlertOutcome = "invalid_budget"
	OutcomeBelowThreshold   AlertOutcome = "below_threshold"
	OutcomeAlreadyAlerted   AlertOutcome = "already_alerted"
	OutcomeAlerted          AlertOutcome = "alerted"
	OutcomeDeliveryFailed   AlertOutcome = "delivery_failed"
	OutcomeError            AlertOutcome = "error"
)

// BudgetOutcome is the per-budget line of a SweepReport.
type BudgetOutcome struct {
	BudgetID       string       `json:"budgetId"`
	UserID         string       `json:"userId"`
	Outcome        AlertOutcome `json:"outcome"`
	PercentageUsed float64      `json:"percentageUsed"`
	Error          string       `json:"error,omitempty"`
}

// SweepReport summarises one run of the budget alert sweep.
type SweepReport struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Evaluated  int             `json:"evaluated"`
	Alerted    int             `json:"alerted"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Outcomes   []BudgetOutcome `json:"outcomes"`
}

// AlertStats is a cumulative snapshot of sweep metrics.
type AlertStats struct {
	Runs            int64            `json:"runs"`
	FailedRuns      int64            `json:"failedRuns"`
	AlertsSent      int64            `json:"alertsSent"`
	DeliveryFailure int64            `json:"deliveryFailures"`
	Outcomes        map[string]int64 `json:"outcomes"`
}
