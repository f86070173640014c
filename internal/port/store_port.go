package port

import (
	"context"
	"time"

	"github.com/boddenberg/finance-tracker-go/internal/domain"

	"github.com/shopspring/decimal"
)

// UserStore handles user records.
type UserStore interface {
	// GetUserByExternalID returns *domain.ErrNotFound when no user is linked to externalID.
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error)
}

// AccountStore handles account records. Every lookup is scoped by user.
type AccountStore interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	// CreateAccount makes the account default when it is the user's first one
	// or when IsDefault is set, clearing the previous default.
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	SetDefaultAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
}

// TransactionStore handles transaction records.
type TransactionStore interface {
	// CreateTransaction inserts tx and applies delta to its account balance
	// atomically. It returns the stored transaction and the new balance.
	CreateTransaction(ctx context.Context, tx *domain.Transaction, delta decimal.Decimal) (*domain.Transaction, decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID, accountID string, limit int) ([]domain.Transaction, error)
	// SumExpensesSince sums EXPENSE amounts dated at or after since. No rows yields zero.
	SumExpensesSince(ctx context.Context, userID, accountID string, since time.Time) (decimal.Decimal, error)
}

// BudgetStore handles budget records.
type BudgetStore interface {
	GetBudget(ctx context.Context, userID string) (*domain.Budget, error)
	UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Budget, error)
	ListBudgetAlertTargets(ctx context.Context) ([]domain.BudgetAlertTarget, error)
	MarkBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error
}

// FinanceStore is the complete persistence surface.
type FinanceStore interface {
	UserStore
	AccountStore
	TransactionStore
	BudgetStore
	Ping(ctx context.Context) error
}

// BudgetAlertStore is the subset the alert sweep needs.
type BudgetAlertStore interface {
	ListBudgetAlertTargets(ctx context.Context) ([]domain.BudgetAlertTarget, error)
	SumExpensesSince(ctx context.Context, userID, accountID string, since time.Time) (decimal.Decimal, error)
	MarkBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error
}
