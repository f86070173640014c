package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/port"
	"github.com/boddenberg/finance-tracker-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// SweepTrigger runs the budget alert sweep on demand.
type SweepTrigger interface {
	Trigger(ctx context.Context) (*domain.SweepReport, bool, error)
}

// Jobs wires the internal job routes.
type Jobs struct {
	Sweeps SweepTrigger
	Secret string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *service.FinanceService, idp port.IdentityProvider, jobs Jobs, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(idp, logger))

		r.Post("/users/sync", syncUserHandler(svc, logger))

		r.Get("/accounts", listAccountsHandler(svc, logger))
		r.Post("/accounts", createAccountHandler(svc, logger))
		r.Get("/accounts/{accountId}", getAccountHandler(svc, logger))
		r.Put("/accounts/{accountId}/default", setDefaultAccountHandler(svc, logger))

		r.Post("/transactions", createTransactionHandler(svc, logger))

		r.Get("/dashboard", dashboardHandler(svc, logger))

		r.Get("/budget", getBudgetHandler(svc, logger))
		r.Put("/budget", updateBudgetHandler(svc, logger))
	})

	// --- Internal jobs ---
	r.Route("/internal/jobs", func(r chi.Router) {
		r.Use(JobsAuthMiddleware(jobs.Secret, logger))
		r.Post("/budget-alerts", runBudgetAlertsHandler(jobs.Sweeps, logger))
		r.Get("/budget-alerts/stats", budgetAlertStatsHandler(metrics))
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(svc *service.FinanceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "finance-api", Status: "healthy", LastChecked: now},
		}

		overall := "healthy"
		if svc != nil {
			start := time.Now()
			err := svc.Ping(r.Context())
			h := domain.ServiceHealth{
				Name:        "store",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				h.Status = "unhealthy"
				h.Error = err.Error()
				overall = "unhealthy"
			}
			services = append(services, h)
		}

		status := http.StatusOK
		if overall != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
