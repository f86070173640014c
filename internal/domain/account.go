package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Users
// ============================================================

// User is the owner of accounts and budgets. ExternalID is the stable
// identity reference issued by the identity provider.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Identity is what the identity provider knows about a caller.
type Identity struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Caller is the request-scoped view of who is calling: the resolved
// external identity plus the network details the abuse guard looks at.
type Caller struct {
	ExternalID string
	IP         string
	UserAgent  string
}

// ============================================================
// Accounts
// ============================================================

// AccountType classifies an account.
type AccountType string

const (
	AccountTypeCurrent AccountType = "CURRENT"
	AccountTypeSavings AccountType = "SAVINGS"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountTypeCurrent || t == AccountTypeSavings
}

// Account is a named monetary ledger owned by a user.
type Account struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	IsDefault bool            `json:"isDefault"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CreateAccountRequest is the payload of POST /v1/accounts.
type CreateAccountRequest struct {
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	IsDefault bool            `json:"isDefault"`
}

// AccountDetail is an account together with its most recent transactions.
type AccountDetail struct {
	Account      *Account      `json:"account"`
	Transactions []Transaction `json:"transactions"`
}

// Dashboard is the aggregated home view of a user.
type Dashboard struct {
	Accounts []Account       `json:"accounts"`
	Budget   *BudgetProgress `json:"budget,omitempty"`
}
