package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/finance-tracker-go/internal/config"
	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/handler"
	"github.com/boddenberg/finance-tracker-go/internal/infra/cache"
	"github.com/boddenberg/finance-tracker-go/internal/infra/email"
	"github.com/boddenberg/finance-tracker-go/internal/infra/identity"
	"github.com/boddenberg/finance-tracker-go/internal/infra/memstore"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/infra/postgres"
	"github.com/boddenberg/finance-tracker-go/internal/infra/ratelimit"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
	"github.com/boddenberg/finance-tracker-go/internal/infra/scheduler"
	"github.com/boddenberg/finance-tracker-go/internal/port"
	"github.com/boddenberg/finance-tracker-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepTimeout = 10 * time.Minute

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
	_ = logger.Sync()
}

// run wires every component and blocks until ctx is cancelled or the server
// fails. Deferred cleanup always runs before it returns.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("rate_limit_capacity", cfg.RateLimitCapacity),
		zap.Duration("rate_limit_interval", cfg.RateLimitInterval),
		zap.String("budget_alert_cron", cfg.BudgetAlertCron),
		zap.Bool("budget_alert_enabled", cfg.BudgetAlertEnabled),
		zap.Bool("email_configured", cfg.ResendAPIKey != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "finance-tracker")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Storage ---
	var store port.FinanceStore
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			Retry:           resilienceCfg,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		store = pg
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		store = memstore.New()
	}

	// --- Cache ---
	dashboardCache := cache.New[*domain.Dashboard](cfg.CacheTTL)
	defer dashboardCache.Close()
	accountCache := cache.New[*domain.AccountDetail](cfg.CacheTTL)
	defer accountCache.Close()

	// --- Identity & abuse guard ---
	idp := identity.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer)
	guard := ratelimit.NewGuard(ratelimit.Config{
		Capacity:          cfg.RateLimitCapacity,
		Refill:            cfg.RateLimitRefill,
		Interval:          cfg.RateLimitInterval,
		BlockedUserAgents: cfg.BlockedUserAgents,
		BlockedIPs:        cfg.BlockedIPs,
	}, logger)
	defer guard.Close()

	// --- Email ---
	renderer, err := email.NewRenderer(cfg.AppURL)
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	mailer := email.NewResendClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		email.ResendConfig{APIKey: cfg.ResendAPIKey, BaseURL: cfg.ResendBaseURL, From: cfg.EmailFrom},
		resilience.NewCircuitBreaker("resend"),
		resilience.NewBulkhead(cfg.MaxConcurrency),
		resilienceCfg,
		logger,
	)
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set; budget alerts will fail delivery")
	}

	// --- Services ---
	financeSvc := service.NewFinanceService(store, guard, dashboardCache, accountCache, metrics, logger)
	sweeper := service.NewBudgetAlertSweeper(store, mailer, renderer, metrics, logger, service.SweepOptions{
		MarkOnFailure: cfg.AlertMarkOnFailure,
	})

	sched, err := scheduler.New(cfg.BudgetAlertCron, sweeper.Run, sweepTimeout, logger)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	// --- Router ---
	router := handler.NewRouter(financeSvc, idp, handler.Jobs{Sweeps: sched, Secret: cfg.JobsSecret}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.BudgetAlertEnabled {
		g.Go(func() error {
			return sched.Start(gctx)
		})
	} else {
		logger.Info("budget alert schedule disabled; sweep available via /internal/jobs")
	}

	// --- Graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
