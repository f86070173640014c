package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var sweepTracer = otel.Tracer("service/budget_alerts")

// SweepOptions tune the budget alert sweep.
type SweepOptions struct {
	// MarkOnFailure records the alert as sent even when delivery failed,
	// so a failed alert is not retried within the same month.
	//
	// The zero value marks a budget only after the mailer accepted the
	// message, so a bounced alert is retried by the next sweep. Set it (or
	// ALERT_MARK_ON_FAILURE=true) for mark-on-every-attempt behaviour.
	MarkOnFailure bool
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// BudgetAlertSweeper sends at most one threshold alert per budget per
// calendar month.
type BudgetAlertSweeper struct {
	store    port.BudgetAlertStore
	mailer   port.Mailer
	renderer port.TemplateRenderer
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     SweepOptions
}

// NewBudgetAlertSweeper creates a sweeper.
func NewBudgetAlertSweeper(
	store port.BudgetAlertStore,
	mailer port.Mailer,
	renderer port.TemplateRenderer,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts SweepOptions,
) *BudgetAlertSweeper {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BudgetAlertSweeper{
		store:    store,
		mailer:   mailer,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// Run evaluates every budget once. Only a failure to load the budgets fails
// the run; per-budget failures are recorded in the report and the sweep
// moves on.
func (s *BudgetAlertSweeper) Run(ctx context.Context) (*domain.SweepReport, error) {
	ctx, span := sweepTracer.Start(ctx, "BudgetAlertSweeper.Run")
	defer span.End()

	report := &domain.SweepReport{
		StartedAt: s.opts.Now().UTC(),
		Outcomes:  make([]domain.BudgetOutcome, 0),
	}

	targets, err := s.store.ListBudgetAlertTargets(ctx)
	if err != nil {
		s.metrics.IncrSweepRun("error")
		s.logger.Error("budget sweep: failed to load budgets", zap.Error(err))
		return nil, fmt.Errorf("load budgets: %w", err)
	}

	for i := range targets {
		if err := ctx.Err(); err != nil {
			s.metrics.IncrSweepRun("error")
			report.FinishedAt = s.opts.Now().UTC()
			return report, err
		}

		out := s.evaluate(ctx, &targets[i])
		s.metrics.IncrBudgetOutcome(out.Outcome)
		report.Outcomes = append(report.Outcomes, out)
		report.Evaluated++

		switch out.Outcome {
		case domain.OutcomeAlerted:
			report.Alerted++
		case domain.OutcomeDeliveryFailed, domain.OutcomeError:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	report.FinishedAt = s.opts.Now().UTC()
	s.metrics.IncrSweepRun("success")
	span.SetAttributes(
		attribute.Int("sweep.evaluated", report.Evaluated),
		attribute.Int("sweep.alerted", report.Alerted),
	)
	s.logger.Info("budget sweep: finished",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("alerted", report.Alerted),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *BudgetAlertSweeper) evaluate(ctx context.Context, t *domain.BudgetAlertTarget) (out domain.BudgetOutcome) {
	out = domain.BudgetOutcome{BudgetID: t.Budget.ID, UserID: t.User.ID}
	log := s.logger.With(zap.String("budget_id", t.Budget.ID), zap.String("user_id", t.User.ID))

	defer func() {
		if p := recover(); p != nil {
			out.Outcome = domain.OutcomeError
			out.Error = fmt.Sprintf("panic: %v", p)
			log.Error("budget sweep: panic while evaluating budget", zap.Any("panic", p))
		}
	}()

	if t.DefaultAccount == nil {
		out.Outcome = domain.OutcomeNoDefaultAccount
		log.Debug("budget sweep: no default account")
		return out
	}
	if !t.Budget.Amount.IsPositive() {
		out.Outcome = domain.OutcomeInvalidBudget
		log.Warn("budget sweep: budget amount is not positive", zap.String("amount", t.Budget.Amount.String()))
		return out
	}

	now := s.opts.Now()
	total, err := s.store.SumExpensesSince(ctx, t.User.ID, t.DefaultAccount.ID, domain.StartOfMonth(now))
	if err != nil {
		out.Outcome = domain.OutcomeError
		out.Error = err.Error()
		log.Error("budget sweep: failed to sum expenses", zap.Error(err))
		return out
	}

	pct, _ := domain.PercentageUsed(total, t.Budget.Amount)
	out.PercentageUsed = pct.Round(2).InexactFloat64()

	if !domain.ShouldAlert(pct, t.Budget.LastAlertSent, now) {
		if domain.BelowAlertThreshold(pct) {
			out.Outcome = domain.OutcomeBelowThreshold
		} else {
			out.Outcome = domain.OutcomeAlreadyAlerted
		}
		log.Debug("budget sweep: no alert", zap.String("outcome", string(out.Outcome)), zap.Float64("percentage_used", out.PercentageUsed))
		return out
	}

	msg, err := s.compose(t, pct.InexactFloat64(), total.InexactFloat64(), now)
	if err != nil {
		out.Outcome = domain.OutcomeError
		out.Error = err.Error()
		log.Error("budget sweep: failed to render email", zap.Error(err))
		return out
	}

	sendErr := s.mailer.Send(ctx, msg)
	if sendErr != nil {
		s.metrics.IncrExternalError("resend")
		out.Outcome = domain.OutcomeDeliveryFailed
		out.Error = sendErr.Error()
		log.Error("budget sweep: failed to send alert", zap.Error(sendErr))
		if !s.opts.MarkOnFailure {
			return out
		}
	} else {
		out.Outcome = domain.OutcomeAlerted
	}

	if err := s.store.MarkBudgetAlertSent(ctx, t.Budget.ID, now); err != nil {
		// the email went out; next run may alert again
		out.Error = fmt.Sprintf("mark alert sent: %v", err)
		log.Error("budget sweep: failed to record alert", zap.Error(err))
		return out
	}

	log.Info("budget sweep: alert processed",
		zap.String("outcome", string(out.Outcome)),
		zap.Float64("percentage_used", out.PercentageUsed),
	)
	return out
}

func (s *BudgetAlertSweeper) compose(t *domain.BudgetAlertTarget, pct, total float64, now time.Time) (*domain.EmailMessage, error) {
	now = now.UTC()
	html, err := s.renderer.Render(&domain.EmailTemplate{
		UserName: t.User.Name,
		Type:     domain.EmailTypeBudgetAlert,
		Data: domain.BudgetAlertData{
			PercentageUsed: pct,
			BudgetAmount:   t.Budget.Amount.InexactFloat64(),
			TotalExpenses:  total,
			Month:          now.Month().String(),
			Year:           now.Year(),
			AccountName:    t.DefaultAccount.Name,
		},
	})
	if err != nil {
		return nil, err
	}
	return &domain.EmailMessage{
		To:      t.User.Email,
		Subject: "Budget Alert for " + t.DefaultAccount.Name,
		HTML:    html,
	}, nil
}
