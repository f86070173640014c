package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// transactionCost is what one write charges against the caller's quota.
const transactionCost = 1

// CreateTransaction records a transaction and moves the account balance by
// its signed amount. Nothing is read from or written to storage until the
// caller is identified, the payload is valid and the abuse guard allows it.
func (s *FinanceService) CreateTransaction(ctx context.Context, caller domain.Caller, req *domain.CreateTransactionRequest) (tx *domain.Transaction, err error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("create_transaction", time.Since(start))
		if err != nil {
			s.logger.Error("transaction creation failed",
				zap.String("external_id", caller.ExternalID),
				zap.Error(err),
			)
		}
	}()

	if caller.ExternalID == "" {
		return nil, &domain.ErrUnauthorized{}
	}
	if req == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "required"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	decision, err := s.guard.Protect(ctx, domain.DecisionRequest{
		UserID:    caller.ExternalID,
		Requested: transactionCost,
		IP:        caller.IP,
		UserAgent: caller.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.metrics.IncrPolicyDenial(decision.Reason)
		if decision.Reason == domain.DenyReasonRateLimit {
			s.logger.Warn("rate limit exceeded",
				zap.String("code", "RATE_LIMIT_EXCEEDED"),
				zap.String("external_id", caller.ExternalID),
				zap.Int("remaining", decision.Remaining),
				zap.Int("reset_in_seconds", decision.ResetSeconds),
			)
			return nil, &domain.ErrRateLimited{Remaining: decision.Remaining, ResetSeconds: decision.ResetSeconds}
		}
		return nil, &domain.ErrRequestBlocked{Reason: string(decision.Reason)}
	}

	user, err := s.store.GetUserByExternalID(ctx, caller.ExternalID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	account, err := s.store.GetAccount(ctx, user.ID, req.AccountID)
	if err != nil {
		return nil, err
	}

	t := &domain.Transaction{
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date.Time,
		Category:    req.Category,
		AccountID:   account.ID,
		UserID:      user.ID,
		IsRecurring: req.IsRecurring,
	}
	if req.IsRecurring && req.RecurringInterval != nil {
		interval := *req.RecurringInterval
		if next, ok := domain.NextRecurringDate(req.Date.Time, interval); ok {
			t.RecurringInterval = &interval
			t.NextRecurringDate = &next
		}
	}

	delta := domain.BalanceChange(req.Type, req.Amount)
	created, balance, err := s.store.CreateTransaction(ctx, t, delta)
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(user.ID)
	s.invalidateAccount(user.ID, account.ID)
	s.metrics.IncrTransactionCreated(created.Type)

	s.logger.Info("transaction created",
		zap.String("transaction_id", created.ID),
		zap.String("account_id", account.ID),
		zap.String("type", string(created.Type)),
		zap.String("new_balance", balance.String()),
	)
	return created, nil
}
