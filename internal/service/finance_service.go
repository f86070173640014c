// Package service provides the business logic layer (use cases).
// FinanceService handles users, accounts, transactions and budgets;
// BudgetAlertSweeper runs the periodic budget alert job.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var financeTracer = otel.Tracer("service/finance")

const recentTransactionsLimit = 100

// FinanceService orchestrates the user-facing finance operations.
type FinanceService struct {
	store      port.FinanceStore
	guard      port.AbuseGuard
	dashboards port.Cache[*domain.Dashboard]
	accounts   port.Cache[*domain.AccountDetail]
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewFinanceService creates a new finance service.
func NewFinanceService(
	store port.FinanceStore,
	guard port.AbuseGuard,
	dashboards port.Cache[*domain.Dashboard],
	accounts port.Cache[*domain.AccountDetail],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *FinanceService {
	return &FinanceService{
		store:      store,
		guard:      guard,
		dashboards: dashboards,
		accounts:   accounts,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (s *FinanceService) SetClock(now func() time.Time) {
	s.now = now
}

func dashboardKey(userID string) string {
	return "dashboard:" + userID
}

func accountKey(userID, accountID string) string {
	return "account:" + userID + ":" + accountID
}

func accountKeyPrefix(userID string) string {
	return "account:" + userID + ":"
}

// resolveUser maps the caller's external identity to the stored user.
func (s *FinanceService) resolveUser(ctx context.Context, externalID string) (*domain.User, error) {
	if externalID == "" {
		return nil, &domain.ErrUnauthorized{}
	}
	return s.store.GetUserByExternalID(ctx, externalID)
}

func (s *FinanceService) invalidateDashboard(userID string) {
	s.dashboards.Delete(dashboardKey(userID))
}

func (s *FinanceService) invalidateAccount(userID, accountID string) {
	s.accounts.Delete(accountKey(userID, accountID))
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

// Ping reports whether storage is reachable.
func (s *FinanceService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
