package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is INCOME or EXPENSE.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// RecurringInterval is the cadence of a recurring transaction.
type RecurringInterval string

const (
	IntervalDaily   RecurringInterval = "DAILY"
	IntervalWeekly  RecurringInterval = "WEEKLY"
	IntervalMonthly RecurringInterval = "MONTHLY"
	IntervalYearly  RecurringInterval = "YEARLY"
)

// Valid reports whether i is one of the four supported cadences.
func (i RecurringInterval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// NextRecurringDate advances date by exactly one interval unit.
// Month and year steps use time.AddDate normalisation: Jan 31 + 1 month is
// Mar 3 (Mar 2 in leap years) and Feb 29 + 1 year is Mar 1.
func NextRecurringDate(date time.Time, interval RecurringInterval) (time.Time, bool) {
	switch interval {
	case IntervalDaily:
		return date.AddDate(0, 0, 1), true
	case IntervalWeekly:
		return date.AddDate(0, 0, 7), true
	case IntervalMonthly:
		return date.AddDate(0, 1, 0), true
	case IntervalYearly:
		return date.AddDate(1, 0, 0), true
	}
	return time.Time{}, false
}

// BalanceChange returns the signed effect of a transaction on its account.
func BalanceChange(t TransactionType, amount decimal.Decimal) decimal.Decimal {
	if t == TransactionTypeIncome {
		return amount
	}
	return amount.Neg()
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID                string             `json:"id"`
	Type              TransactionType    `json:"type"`
	Amount            decimal.Decimal    `json:"amount"`
	Description       string             `json:"description,omitempty"`
	Date              time.Time          `json:"date"`
	Category          string             `json:"category"`
	AccountID         string             `json:"accountId"`
	UserID            string             `json:"userId"`
	IsRecurring       bool               `json:"isRecurring"`
	RecurringInterval *RecurringInterval `json:"recurringInterval"`
	NextRecurringDate *time.Time         `json:"nextRecurringDate"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// MarshalJSON writes amount as a plain JSON number.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type alias Transaction
	return json.Marshal(struct {
		alias
		Amount float64 `json:"amount"`
	}{
		alias:  alias(t),
		Amount: t.Amount.InexactFloat64(),
	})
}

// RequestDate accepts either an RFC 3339 timestamp or a bare 2006-01-02
// calendar date. Bare dates are midnight UTC.
type RequestDate struct {
	time.Time
}

// NewRequestDate wraps t.
func NewRequestDate(t time.Time) RequestDate {
	return RequestDate{Time: t}
}

func (d *RequestDate) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return fmt.Errorf("date: %q is neither RFC 3339 nor YYYY-MM-DD", raw)
	}
	d.Time = t
	return nil
}

// CreateTransactionRequest is the payload of POST /v1/transactions.
type CreateTransactionRequest struct {
	Type              TransactionType    `json:"type"`
	Amount            decimal.Decimal    `json:"amount"`
	Description       string             `json:"description"`
	Date              RequestDate        `json:"date"`
	Category          string             `json:"category"`
	AccountID         string             `json:"accountId"`
	IsRecurring       bool               `json:"isRecurring"`
	RecurringInterval *RecurringInterval `json:"recurringInterval,omitempty"`
}

// Validate checks the payload shape. It does not look at storage.
func (r *CreateTransactionRequest) Validate() error {
	if !r.Type.Valid() {
		return &ErrValidation{Field: "type", Message: "must be INCOME or EXPENSE"}
	}
	if r.Amount.IsNegative() {
		return &ErrValidation{Field: "amount", Message: "must not be negative"}
	}
	if !r.Amount.Equal(r.Amount.Round(2)) {
		return &ErrValidation{Field: "amount", Message: "must have at most 2 decimal places"}
	}
	if r.Date.IsZero() {
		return &ErrValidation{Field: "date", Message: "required"}
	}
	if r.Category == "" {
		return &ErrValidation{Field: "category", Message: "required"}
	}
	if !IsKnownCategory(r.Category) {
		return &ErrValidation{Field: "category", Message: "unknown category"}
	}
	if r.AccountID == "" {
		return &ErrValidation{Field: "accountId", Message: "required"}
	}
	if r.RecurringInterval != nil && !r.RecurringInterval.Valid() {
		return &ErrValidation{Field: "recurringInterval", Message: "must be DAILY, WEEKLY, MONTHLY or YEARLY"}
	}
	return nil
}
