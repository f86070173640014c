// Package memstore is a process-local FinanceStore. It backs
// STORAGE_DRIVER=memory and the service-level tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// ErrInjected is returned by the write path after FailNextBalanceUpdate.
var ErrInjected = errors.New("memstore: injected balance update failure")

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	accounts     map[string]domain.Account
	transactions []domain.Transaction
	budgets      map[string]domain.Budget // by user id

	failBalance bool
	rollbacks   int
	now         func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		accounts: make(map[string]domain.Account),
		budgets:  make(map[string]domain.Budget),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source used for created/updated fields.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNextBalanceUpdate makes the next CreateTransaction fail after its
// insert is staged and before the balance is applied. The staged row is
// discarded.
func (s *Store) FailNextBalanceUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBalance = true
}

func (s *Store) Ping(context.Context) error { return nil }

// ------------------------------------------------------------
// Users
// ------------------------------------------------------------

func (s *Store) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ExternalID == externalID {
			out := u
			return &out, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: externalID}
}

func (s *Store) UpsertUser(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.ExternalID == user.ExternalID {
			u.Name = user.Name
			u.Email = user.Email
			s.users[id] = u
			out := u
			return &out, nil
		}
	}

	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	out := u
	return &out, nil
}

// ------------------------------------------------------------
// Accounts
// ------------------------------------------------------------

func (s *Store) ListAccounts(_ context.Context, userID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountsOf(userID), nil
}

func (s *Store) accountsOf(userID string) []domain.Account {
	out := make([]domain.Account, 0)
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) GetAccount(_ context.Context, userID, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	return &a, nil
}

func (s *Store) CreateAccount(_ context.Context, account *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *account
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	a.IsDefault = a.IsDefault || len(s.accountsOf(a.UserID)) == 0
	if a.IsDefault {
		s.clearDefault(a.UserID)
	}
	s.accounts[a.ID] = a
	return &a, nil
}

func (s *Store) SetDefaultAccount(_ context.Context, userID, accountID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	s.clearDefault(userID)
	a.IsDefault = true
	s.accounts[a.ID] = a
	return &a, nil
}

func (s *Store) clearDefault(userID string) {
	for id, a := range s.accounts {
		if a.UserID == userID && a.IsDefault {
			a.IsDefault = false
			s.accounts[id] = a
		}
	}
}

// ------------------------------------------------------------
// Transactions
// ------------------------------------------------------------

// CreateTransaction stages the row and the new balance and publishes both
// under the same lock, or neither.
func (s *Store) CreateTransaction(_ context.Context, t *domain.Transaction, delta decimal.Decimal) (*domain.Transaction, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *t
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now().UTC()
	}

	acc, ok := s.accounts[row.AccountID]
	if !ok || acc.UserID != row.UserID {
		return nil, decimal.Zero, &domain.ErrNotFound{Resource: "account", ID: row.AccountID}
	}

	// insert first, into a copy that only replaces the live slice on commit
	staged := append(s.transactions[:len(s.transactions):len(s.transactions)], row)

	if s.failBalance {
		s.failBalance = false
		s.rollbacks++
		return nil, decimal.Zero, ErrInjected
	}

	acc.Balance = acc.Balance.Add(delta)
	s.accounts[acc.ID] = acc
	s.transactions = staged
	return &row, acc.Balance, nil
}

func (s *Store) ListTransactions(_ context.Context, userID, accountID string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID == userID && t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumExpensesSince(_ context.Context, userID, accountID string, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, t := range s.transactions {
		if t.UserID != userID || t.AccountID != accountID || t.Type != domain.TransactionTypeExpense {
			continue
		}
		if t.Date.Before(since) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

// Rollbacks counts write paths that staged an insert and then discarded it.
func (s *Store) Rollbacks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rollbacks
}

// TransactionCount is the number of stored transactions.
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// ------------------------------------------------------------
// Budgets
// ------------------------------------------------------------

func (s *Store) GetBudget(_ context.Context, userID string) (*domain.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.budgets[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "budget", ID: userID}
	}
	return &b, nil
}

func (s *Store) UpsertBudget(_ context.Context, userID string, amount decimal.Decimal) (*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.budgets[userID]
	if !ok {
		b = domain.Budget{ID: uuid.NewString(), UserID: userID}
	}
	b.Amount = amount
	b.UpdatedAt = s.now().UTC()
	s.budgets[userID] = b
	return &b, nil
}

func (s *Store) ListBudgetAlertTargets(context.Context) ([]domain.BudgetAlertTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]domain.BudgetAlertTarget, 0, len(s.budgets))
	for userID, b := range s.budgets {
		u, ok := s.users[userID]
		if !ok {
			continue
		}
		t := domain.BudgetAlertTarget{Budget: b, User: u}
		for _, a := range s.accounts {
			if a.UserID == userID && a.IsDefault {
				acc := a
				t.DefaultAccount = &acc
				break
			}
		}
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Budget.ID < targets[j].Budget.ID })
	return targets, nil
}

func (s *Store) MarkBudgetAlertSent(_ context.Context, budgetID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, b := range s.budgets {
		if b.ID == budgetID {
			ts := at.UTC()
			b.LastAlertSent = &ts
			s.budgets[userID] = b
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "budget", ID: budgetID}
}
