// Package ratelimit is the abuse guard consulted before every mutation:
// a user-agent and IP shield followed by a per-user token bucket.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/cache"
)

// Config holds bucket and shield parameters.
type Config struct {
	// Capacity is the bucket size.
	Capacity int
	// Refill tokens are added per Interval.
	Refill   int
	Interval time.Duration

	BlockedUserAgents []string
	BlockedIPs        []string
}

// Guard implements port.AbuseGuard.
type Guard struct {
	cfg      Config
	every    rate.Limit
	limiters *cache.InMemory[*rate.Limiter]
	mu       sync.Mutex
	now      func() time.Time
	logger   *zap.Logger
}

// NewGuard builds a guard. Idle limiters are dropped after twice the time a
// bucket needs to refill from empty, when they would be full anyway.
func NewGuard(cfg Config, logger *zap.Logger) *Guard {
	if cfg.Capacity < 1 {
		cfg.Capacity = 10
	}
	if cfg.Refill < 1 {
		cfg.Refill = cfg.Capacity
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	fullRefill := cfg.Interval * time.Duration(cfg.Capacity) / time.Duration(cfg.Refill)
	return &Guard{
		cfg:      cfg,
		every:    rate.Every(cfg.Interval / time.Duration(cfg.Refill)),
		limiters: cache.New[*rate.Limiter](2 * fullRefill),
		now:      time.Now,
		logger:   logger,
	}
}

// Close stops the limiter table's cleanup loop.
func (g *Guard) Close() {
	g.limiters.Close()
}

// Protect returns the verdict for req. It never fails; the error return
// exists for guards backed by a remote service.
func (g *Guard) Protect(_ context.Context, req domain.DecisionRequest) (*domain.Decision, error) {
	if reason, blocked := g.shield(req); blocked {
		g.logger.Warn("abuse guard: request blocked",
			zap.String("user_id", req.UserID),
			zap.String("reason", string(reason)),
			zap.String("user_agent", req.UserAgent),
			zap.String("ip", req.IP),
		)
		return &domain.Decision{Allowed: false, Reason: reason}, nil
	}

	n := req.Requested
	if n < 1 {
		n = 1
	}

	lim := g.limiter(req.UserID)
	now := g.now()

	if lim.AllowN(now, n) {
		return &domain.Decision{
			Allowed:   true,
			Remaining: int(math.Floor(lim.TokensAt(now))),
		}, nil
	}

	tokens := lim.TokensAt(now)
	missing := float64(n) - tokens
	reset := int(math.Ceil(missing/float64(lim.Limit()) - 1e-9))
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	return &domain.Decision{
		Allowed:      false,
		Reason:       domain.DenyReasonRateLimit,
		Remaining:    remaining,
		ResetSeconds: reset,
	}, nil
}

func (g *Guard) shield(req domain.DecisionRequest) (domain.DenyReason, bool) {
	ua := strings.ToLower(req.UserAgent)
	for _, bad := range g.cfg.BlockedUserAgents {
		if bad != "" && strings.Contains(ua, strings.ToLower(bad)) {
			return domain.DenyReasonBot, true
		}
	}
	for _, ip := range g.cfg.BlockedIPs {
		if ip != "" && ip == req.IP {
			return domain.DenyReasonShield, true
		}
	}
	return domain.DenyReasonNone, false
}

func (g *Guard) limiter(userID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.limiters.Get(userID)
	if !ok {
		lim = rate.NewLimiter(g.every, g.cfg.Capacity)
	}
	g.limiters.Set(userID, lim)
	return lim
}
