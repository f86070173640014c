package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/memstore"
)

// spyStore counts every storage call before delegating to a memstore.
type spyStore struct {
	inner *memstore.Store
	calls atomic.Int32

	failSum  error
	failMark error
}

func newSpyStore() *spyStore {
	return &spyStore{inner: memstore.New()}
}

func (s *spyStore) Calls() int { return int(s.calls.Load()) }

func (s *spyStore) Ping(ctx context.Context) error {
	s.calls.Add(1)
	return s.inner.Ping(ctx)
}

func (s *spyStore) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	s.calls.Add(1)
	return s.inner.GetUserByExternalID(ctx, externalID)
}

func (s *spyStore) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	s.calls.Add(1)
	return s.inner.UpsertUser(ctx, u)
}

func (s *spyStore) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	s.calls.Add(1)
	return s.inner.ListAccounts(ctx, userID)
}

func (s *spyStore) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	s.calls.Add(1)
	return s.inner.GetAccount(ctx, userID, accountID)
}

func (s *spyStore) CreateAccount(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	s.calls.Add(1)
	return s.inner.CreateAccount(ctx, a)
}

func (s *spyStore) SetDefaultAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	s.calls.Add(1)
	return s.inner.SetDefaultAccount(ctx, userID, accountID)
}

func (s *spyStore) CreateTransaction(ctx context.Context, t *domain.Transaction, delta decimal.Decimal) (*domain.Transaction, decimal.Decimal, error) {
	s.calls.Add(1)
	return s.inner.CreateTransaction(ctx, t, delta)
}

func (s *spyStore) ListTransactions(ctx context.Context, userID, accountID string, limit int) ([]domain.Transaction, error) {
	s.calls.Add(1)
	return s.inner.ListTransactions(ctx, userID, accountID, limit)
}

func (s *spyStore) SumExpensesSince(ctx context.Context, userID, accountID string, since time.Time) (decimal.Decimal, error) {
	s.calls.Add(1)
	if s.failSum != nil {
		return decimal.Zero, s.failSum
	}
	return s.inner.SumExpensesSince(ctx, userID, accountID, since)
}

func (s *spyStore) GetBudget(ctx context.Context, userID string) (*domain.Budget, error) {
	s.calls.Add(1)
	return s.inner.GetBudget(ctx, userID)
}

func (s *spyStore) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Budget, error) {
	s.calls.Add(1)
	return s.inner.UpsertBudget(ctx, userID, amount)
}

func (s *spyStore) ListBudgetAlertTargets(ctx context.Context) ([]domain.BudgetAlertTarget, error) {
	s.calls.Add(1)
	return s.inner.ListBudgetAlertTargets(ctx)
}

func (s *spyStore) MarkBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error {
	s.calls.Add(1)
	if s.failMark != nil {
		return s.failMark
	}
	return s.inner.MarkBudgetAlertSent(ctx, budgetID, at)
}

// fakeGuard returns a fixed decision and counts calls.
type fakeGuard struct {
	decision domain.Decision
	err      error
	calls    int
	last     domain.DecisionRequest
}

func allowAll() *fakeGuard {
	return &fakeGuard{decision: domain.Decision{Allowed: true, Remaining: 9}}
}

func (g *fakeGuard) Protect(_ context.Context, req domain.DecisionRequest) (*domain.Decision, error) {
	g.calls++
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	d := g.decision
	return &d, nil
}

// fakeMailer records messages; failFor makes delivery to that address fail.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []*domain.EmailMessage
	failFor map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, msg *domain.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.To] {
		return &domain.ErrDelivery{Provider: "fake", Err: errors.New("mailbox unavailable")}
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Sent() []*domain.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.EmailMessage(nil), m.sent...)
}

// panicRenderer blows up for one user name.
type panicRenderer struct {
	inner interface {
		Render(*domain.EmailTemplate) (string, error)
	}
	panicFor string
}

func (r panicRenderer) Render(tpl *domain.EmailTemplate) (string, error) {
	if tpl.UserName == r.panicFor {
		panic("template exploded")
	}
	return r.inner.Render(tpl)
}
