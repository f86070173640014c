package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
)

var tracer = otel.Tracer("email")

const (
	providerName   = "resend"
	DefaultBaseURL = "https://api.resend.com"
	DefaultFrom    = "Finance App <onboarding@resend.dev>"
)

var errNotConfigured = errors.New("email service not configured")

// ResendConfig holds the Resend credentials and sender.
type ResendConfig struct {
	APIKey  string
	BaseURL string
	From    string
}

// ResendClient implements port.Mailer.
type ResendClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
	cb         *gobreaker.CircuitBreaker
	bh         *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewResendClient creates a Resend client.
func NewResendClient(httpClient *http.Client, rc ResendConfig, cb *gobreaker.CircuitBreaker, bh *resilience.Bulkhead, cfg resilience.Config, logger *zap.Logger) *ResendClient {
	if rc.BaseURL == "" {
		rc.BaseURL = DefaultBaseURL
	}
	if rc.From == "" {
		rc.From = DefaultFrom
	}
	return &ResendClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(rc.BaseURL, "/"),
		apiKey:     rc.APIKey,
		from:       rc.From,
		cb:         cb,
		bh:         bh,
		cfg:        cfg,
		logger:     logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers msg. Network errors, 429 and 5xx are retried; other 4xx
// fail at once. Every failure is a *domain.ErrDelivery.
func (c *ResendClient) Send(ctx context.Context, msg *domain.EmailMessage) error {
	ctx, span := tracer.Start(ctx, "ResendClient.Send")
	defer span.End()

	if c.apiKey == "" {
		c.logger.Error("resend: RESEND_API_KEY is not set")
		return &domain.ErrDelivery{Provider: providerName, Err: errNotConfigured}
	}

	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return &domain.ErrDelivery{Provider: providerName, Err: err}
	}

	var out sendResponse
	err = resilience.Execute(ctx, c.cb, c.bh, c.cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &out)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("resend: retryable status",
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(raw)),
			)
			return fmt.Errorf("resend returned %d: %s", resp.StatusCode, string(raw))
		default:
			return resilience.Permanent(fmt.Errorf("resend returned %d: %s", resp.StatusCode, string(raw)))
		}
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("email.delivered", false))
		c.logger.Error("resend: send failed", zap.Error(err))
		return &domain.ErrDelivery{Provider: providerName, Err: err}
	}

	span.SetAttributes(
		attribute.Bool("email.delivered", true),
		attribute.String("email.id", out.ID),
	)
	c.logger.Debug("resend: email sent", zap.String("id", out.ID))
	return nil
}
