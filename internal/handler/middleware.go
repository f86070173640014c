package handler

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/port"
	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// JobsSecretHeader carries the shared secret of the /internal/jobs routes.
const JobsSecretHeader = "X-Jobs-Secret"

// IdentityMiddleware resolves Bearer tokens and injects the identity into
// context. Requests without a valid token continue anonymously; the service
// layer decides whether an identity is required.
func IdentityMiddleware(idp port.IdentityProvider, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || idp == nil {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				next.ServeHTTP(w, r)
				return
			}

			id, err := idp.Resolve(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the resolved identity, or nil for anonymous callers.
func IdentityFromContext(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(identityKey).(*domain.Identity)
	return id
}

func externalID(r *http.Request) string {
	if id := IdentityFromContext(r.Context()); id != nil {
		return id.ExternalID
	}
	return ""
}

// callerFrom builds the abuse-guard view of the request. RemoteAddr has
// already been rewritten by middleware.RealIP.
func callerFrom(r *http.Request) domain.Caller {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return domain.Caller{
		ExternalID: externalID(r),
		IP:         ip,
		UserAgent:  r.UserAgent(),
	}
}

// JobsAuthMiddleware guards the internal job routes with a shared secret.
// An empty secret disables the routes.
func JobsAuthMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusServiceUnavailable, "jobs endpoint disabled")
				return
			}
			got := r.Header.Get(JobsSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.Warn("jobs: rejected request",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
