package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// GetBudget returns the budget and the current month's expenses on
// accountID, or on the default account when accountID is empty. A user
// without a budget gets a progress value with a nil Budget.
func (s *FinanceService) GetBudget(ctx context.Context, externalID, accountID string) (*domain.BudgetProgress, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.GetBudget")
	defer span.End()

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if accountID == "" {
		accounts, err := s.store.ListAccounts(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			if a.IsDefault {
				accountID = a.ID
				break
			}
		}
	} else if _, err := s.store.GetAccount(ctx, user.ID, accountID); err != nil {
		return nil, err
	}

	return s.budgetProgress(ctx, user.ID, accountID)
}

// UpdateBudget sets the monthly amount.
func (s *FinanceService) UpdateBudget(ctx context.Context, externalID string, req *domain.UpdateBudgetRequest) (*domain.Budget, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.UpdateBudget")
	defer span.End()

	if externalID == "" {
		return nil, &domain.ErrUnauthorized{}
	}
	if req == nil || !req.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}

	user, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	budget, err := s.store.UpsertBudget(ctx, user.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(user.ID)
	s.logger.Info("budget updated",
		zap.String("user_id", user.ID),
		zap.String("amount", budget.Amount.String()),
	)
	return budget, nil
}

func (s *FinanceService) budgetProgress(ctx context.Context, userID, accountID string) (*domain.BudgetProgress, error) {
	progress := &domain.BudgetProgress{AccountID: accountID, CurrentExpense: decimal.Zero}

	budget, err := s.store.GetBudget(ctx, userID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if budget != nil {
		progress.Budget = budget
	}
	if accountID == "" {
		return progress, nil
	}

	total, err := s.store.SumExpensesSince(ctx, userID, accountID, domain.StartOfMonth(s.now()))
	if err != nil {
		return nil, err
	}
	progress.CurrentExpense = total

	if budget != nil {
		if pct, ok := domain.PercentageUsed(total, budget.Amount); ok {
			progress.PercentageUsed = pct.Round(2).InexactFloat64()
		}
	}
	return progress, nil
}
