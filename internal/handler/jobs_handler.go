package handler

import (
	"net/http"

	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"

	"go.uber.org/zap"
)

// ============================================================
// Internal jobs
// ============================================================

type sweepResponse struct {
	Shared bool `json:"shared"`
	Report any  `json:"report"`
}

// runBudgetAlertsHandler runs the sweep and returns its report. A request
// that lands while a sweep is running gets that sweep's report.
func runBudgetAlertsHandler(sweeps SweepTrigger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /internal/jobs/budget-alerts")
		defer span.End()

		if sweeps == nil {
			writeError(w, http.StatusServiceUnavailable, "budget alerts not configured")
			return
		}

		report, shared, err := sweeps.Trigger(ctx)
		if err != nil {
			logger.Error("jobs: budget sweep failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "budget sweep failed")
			return
		}
		writeJSON(w, http.StatusOK, sweepResponse{Shared: shared, Report: report})
	}
}

func budgetAlertStatsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.AlertSnapshot())
	}
}
