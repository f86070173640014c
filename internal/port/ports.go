// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// IdentityProvider resolves an opaque caller token to a stable identity.
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (*domain.Identity, error)
}

// AbuseGuard returns an allow/deny verdict for a caller before any mutation.
type AbuseGuard interface {
	Protect(ctx context.Context, req domain.DecisionRequest) (*domain.Decision, error)
}

// Mailer delivers a rendered email. Callers do not retry.
type Mailer interface {
	Send(ctx context.Context, msg *domain.EmailMessage) error
}

// TemplateRenderer turns an email template into an HTML body.
type TemplateRenderer interface {
	Render(tpl *domain.EmailTemplate) (string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	DeletePrefix(prefix string)
}
