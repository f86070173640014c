// Package identity resolves bearer tokens issued by the external identity
// provider into caller identities.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// Claims are the token claims the API reads. Subject carries the external
// user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 tokens signed with a shared secret.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTProvider returns a provider. An empty issuer accepts any issuer.
func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Resolve validates token and returns the caller identity. Every failure is
// reported as *domain.ErrUnauthorized.
func (p *JWTProvider) Resolve(_ context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, &domain.ErrUnauthorized{}
	}
	if len(p.secret) == 0 {
		return nil, &domain.ErrUnauthorized{Message: "identity provider not configured"}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &domain.ErrUnauthorized{Message: "Token expired"}
		}
		return nil, &domain.ErrUnauthorized{}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{}
	}

	return &domain.Identity{
		ExternalID: claims.Subject,
		Name:       claims.Name,
		Email:      claims.Email,
	}, nil
}

// Issue signs a token for id. Used for local development and tests.
func (p *JWTProvider) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ExternalID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
