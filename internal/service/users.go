package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// SyncUser makes sure a user row exists for the identity, refreshing its
// name and email.
func (s *FinanceService) SyncUser(ctx context.Context, id *domain.Identity) (*domain.User, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.SyncUser")
	defer span.End()

	if id == nil || id.ExternalID == "" {
		return nil, &domain.ErrUnauthorized{}
	}
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "required"}
	}

	user, err := s.store.UpsertUser(ctx, &domain.User{
		ExternalID: id.ExternalID,
		Name:       strings.TrimSpace(id.Name),
		Email:      email,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("user synced", zap.String("user_id", user.ID))
	return user, nil
}
