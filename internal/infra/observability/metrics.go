package observability

import (
	"time"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the finance API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	transactionsCreated *prometheus.CounterVec
	policyDenials       *prometheus.CounterVec
	externalErrors      *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	sweepRuns           *prometheus.CounterVec
	budgetOutcomes      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transactionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_transactions_created_total",
				Help: "Transactions persisted, by type.",
			},
			[]string{"type"},
		),
		policyDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_policy_denials_total",
				Help: "Requests denied by the abuse guard, by reason.",
			},
			[]string{"reason"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_cache_hits_total",
				Help: "Total view cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_cache_misses_total",
				Help: "Total view cache misses.",
			},
			[]string{"cache"},
		),
		sweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_budget_sweeps_total",
				Help: "Budget alert sweep runs, by status.",
			},
			[]string{"status"},
		),
		budgetOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_budget_outcomes_total",
				Help: "Per-budget sweep outcomes.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTransactionCreated counts a persisted transaction.
func (m *Metrics) IncrTransactionCreated(txType domain.TransactionType) {
	m.transactionsCreated.WithLabelValues(string(txType)).Inc()
}

// IncrPolicyDenial counts an abuse guard denial.
func (m *Metrics) IncrPolicyDenial(reason domain.DenyReason) {
	m.policyDenials.WithLabelValues(string(reason)).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrSweepRun counts a sweep run ("success" or "error").
func (m *Metrics) IncrSweepRun(status string) {
	m.sweepRuns.WithLabelValues(status).Inc()
}

// IncrBudgetOutcome counts a per-budget sweep outcome.
func (m *Metrics) IncrBudgetOutcome(outcome domain.AlertOutcome) {
	m.budgetOutcomes.WithLabelValues(string(outcome)).Inc()
}

var allOutcomes = []domain.AlertOutcome{
	domain.OutcomeNoDefaultAccount,
	domain.OutcomeInvalidBudget,
	domain.OutcomeBelowThreshold,
	domain.OutcomeAlreadyAlerted,
	domain.OutcomeAlerted,
	domain.OutcomeDeliveryFailed,
	domain.OutcomeError,
}

// AlertSnapshot returns the cumulative sweep counters, for the
// GET /internal/jobs/budget-alerts/stats endpoint.
func (m *Metrics) AlertSnapshot() *domain.AlertStats {
	success := getCounterValue(m.sweepRuns, "success")
	failed := getCounterValue(m.sweepRuns, "error")

	outcomes := make(map[string]int64, len(allOutcomes))
	for _, o := range allOutcomes {
		outcomes[string(o)] = int64(getCounterValue(m.budgetOutcomes, string(o)))
	}

	return &domain.AlertStats{
		Runs:            int64(success + failed),
		FailedRuns:      int64(failed),
		AlertsSent:      outcomes[string(domain.OutcomeAlerted)],
		DeliveryFailure: outcomes[string(domain.OutcomeDeliveryFailed)],
		Outcomes:        outcomes,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
