package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// ============================================================
// Accounts
// ============================================================

func (s *FinanceService) ListAccounts(ctx context.Context, externalID string) ([]domain.Account, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.ListAccounts")
	defer span.End()

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	return s.store.ListAccounts(ctx, user.ID)
}

// CreateAccount opens an account. The user's first account is always the
// default one.
func (s *FinanceService) CreateAccount(ctx context.Context, externalID string, req *domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.CreateAccount")
	defer span.End()

	if externalID == "" {
		return nil, &domain.ErrUnauthorized{}
	}
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if !req.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be CURRENT or SAVINGS"}
	}

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	account, err := s.store.CreateAccount(ctx, &domain.Account{
		UserID:    user.ID,
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Balance:   req.Balance,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(user.ID)
	s.logger.Info("account created",
		zap.String("user_id", user.ID),
		zap.String("account_id", account.ID),
		zap.Bool("is_default", account.IsDefault),
	)
	return account, nil
}

// SetDefaultAccount moves the default flag to accountID.
func (s *FinanceService) SetDefaultAccount(ctx context.Context, externalID, accountID string) (*domain.Account, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.SetDefaultAccount")
	defer span.End()

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	account, err := s.store.SetDefaultAccount(ctx, user.ID, accountID)
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(user.ID)
	s.accounts.DeletePrefix(accountKeyPrefix(user.ID))
	return account, nil
}

// GetAccountDetail returns the account with its most recent transactions.
func (s *FinanceService) GetAccountDetail(ctx context.Context, externalID, accountID string) (*domain.AccountDetail, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.GetAccountDetail")
	defer span.End()

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	key := accountKey(user.ID, accountID)
	if cached, ok := s.accounts.Get(key); ok {
		s.metrics.IncrCacheHit("account")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("account")

	account, err := s.store.GetAccount(ctx, user.ID, accountID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, user.ID, account.ID, recentTransactionsLimit)
	if err != nil {
		return nil, err
	}

	detail := &domain.AccountDetail{Account: account, Transactions: txs}
	s.accounts.Set(key, detail)
	return detail, nil
}

// ============================================================
// Dashboard
// ============================================================

// GetDashboard returns all accounts and, when a budget exists, its progress
// on the default account for the current month.
func (s *FinanceService) GetDashboard(ctx context.Context, externalID string) (*domain.Dashboard, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.GetDashboard")
	defer span.End()

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	key := dashboardKey(user.ID)
	if cached, ok := s.dashboards.Get(key); ok {
		s.metrics.IncrCacheHit("dashboard")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("dashboard")

	accounts, err := s.store.ListAccounts(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	dash := &domain.Dashboard{Accounts: accounts}
	for i := range accounts {
		if accounts[i].IsDefault {
			progress, err := s.budgetProgress(ctx, user.ID, accounts[i].ID)
			if err != nil {
				return nil, err
			}
			if progress.Budget != nil {
				dash.Budget = progress
			}
			break
		}
	}

	s.dashboards.Set(key, dash)
	return dash, nil
}
