package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/handler"
	"github.com/boddenberg/finance-tracker-go/internal/infra/cache"
	"github.com/boddenberg/finance-tracker-go/internal/infra/identity"
	"github.com/boddenberg/finance-tracker-go/internal/infra/memstore"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/infra/ratelimit"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

const jobsSecret = "s3cret"

type stubSweeps struct {
	calls int
}

func (s *stubSweeps) Trigger(context.Context) (*domain.SweepReport, bool, error) {
	s.calls++
	return &domain.SweepReport{Evaluated: 2, Alerted: 1, Skipped: 1, Outcomes: []domain.BudgetOutcome{}}, false, nil
}

type testServer struct {
	router http.Handler
	idp    *identity.JWTProvider
	store  *memstore.Store
	sweeps *stubSweeps
}

func newTestServer(t *testing.T, guardCfg ratelimit.Config) *testServer {
	t.Helper()

	store := memstore.New()
	guard := ratelimit.NewGuard(guardCfg, zap.NewNop())
	dashboards := cache.New[*domain.Dashboard](time.Minute)
	accounts := cache.New[*domain.AccountDetail](time.Minute)
	t.Cleanup(guard.Close)
	t.Cleanup(dashboards.Close)
	t.Cleanup(accounts.Close)

	metrics := observability.NewMetrics()
	svc := service.NewFinanceService(store, guard, dashboards, accounts, metrics, zap.NewNop())
	idp := identity.NewJWTProvider("test-secret", "")
	sweeps := &stubSweeps{}

	router := handler.NewRouter(svc, idp, handler.Jobs{Sweeps: sweeps, Secret: jobsSecret}, metrics, zap.NewNop())
	return &testServer{router: router, idp: idp, store: store, sweeps: sweeps}
}

func (s *testServer) token(t *testing.T, externalID string) string {
	t.Helper()
	tok, err := s.idp.Issue(domain.Identity{ExternalID: externalID, Name: "Ada", Email: externalID + "@example.com"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// onboard syncs the user and opens their first account.
func (s *testServer) onboard(t *testing.T, externalID string) (token, accountID string) {
	t.Helper()
	token = s.token(t, externalID)

	rec := s.do(t, http.MethodPost, "/v1/users/sync", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/accounts", token, map[string]any{"name": "Main", "type": "CURRENT", "balance": 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var acc domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	require.True(t, acc.IsDefault)
	return token, acc.ID
}

func txBody(accountID string, amount float64) map[string]any {
	return map[string]any{
		"type":      "EXPENSE",
		"amount":    amount,
		"date":      "2026-03-10T00:00:00Z",
		"category":  "groceries",
		"accountId": accountID,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping"} {
		t.Run(path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Services, 2)
}

func TestMetricsExposesFinanceSeries(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	token, accountID := s.onboard(t, "user_1")

	rec := s.do(t, http.MethodPost, "/v1/transactions", token, txBody(accountID, 10))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, rec.Body.String(), `finance_transactions_created_total{type="EXPENSE"} 1`)
}

func TestCreateTransaction_Success(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	token, accountID := s.onboard(t, "user_1")

	rec := s.do(t, http.MethodPost, "/v1/transactions", token, txBody(accountID, 25.5))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 25.5, data["amount"])
	assert.Equal(t, accountID, data["accountId"])

	rec = s.do(t, http.MethodGet, "/v1/accounts/"+accountID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Account struct {
			Balance string `json:"balance"`
		} `json:"account"`
		Transactions []json.RawMessage `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "74.5", detail.Account.Balance)
	assert.Len(t, detail.Transactions, 1)
}

func TestCreateTransaction_DateOnlyRecurringWithoutInterval(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	token, accountID := s.onboard(t, "user_1")

	body := txBody(accountID, 10)
	body["date"] = "2026-03-01"
	body["isRecurring"] = true

	rec := s.do(t, http.MethodPost, "/v1/transactions", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "2026-03-01T00:00:00Z", data["date"])
	assert.Equal(t, true, data["isRecurring"])
	assert.Nil(t, data["recurringInterval"])
	assert.Nil(t, data["nextRecurringDate"])
	assert.Equal(t, 1, s.store.TransactionCount())
}

func TestCreateTransaction_ErrorEnvelope(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{BlockedUserAgents: []string{"curl"}})
	token, accountID := s.onboard(t, "user_1")
	stranger := s.token(t, "never_synced")

	tests := []struct {
		name    string
		token   string
		body    any
		headers []string
		status  int
		message string
	}{
		{"no token", "", txBody(accountID, 1), nil, http.StatusUnauthorized, "Unauthorized"},
		{"garbage token", "not-a-jwt", txBody(accountID, 1), nil, http.StatusUnauthorized, "Unauthorized"},
		{"unknown user", stranger, txBody(accountID, 1), nil, http.StatusNotFound, "User not found"},
		{"unknown account", token, txBody("acc-missing", 1), nil, http.StatusNotFound, "Account not found"},
		{"negative amount", token, txBody(accountID, -1), nil, http.StatusBadRequest, ""},
		{"sub-cent amount", token, txBody(accountID, 0.001), nil, http.StatusBadRequest, ""},
		{"unknown field", token, map[string]any{"type": "EXPENSE", "bogus": true}, nil, http.StatusBadRequest, ""},
		{"bot user agent", token, txBody(accountID, 1), []string{"User-Agent", "curl/8.4.0"}, http.StatusForbidden, "Request Blocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/transactions", tt.token, tt.body, tt.headers...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Error)
			}
		})
	}

	assert.Equal(t, 0, s.store.TransactionCount())
}

func TestCreateTransaction_RateLimited(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{Capacity: 2, Refill: 2, Interval: time.Hour})
	token, accountID := s.onboard(t, "user_1")

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/v1/transactions", token, txBody(accountID, 1))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/v1/transactions", token, txBody(accountID, 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Too many requests. Please try again later.", env.Error)
	assert.Equal(t, 2, s.store.TransactionCount())

	// quotas are per user
	other, otherAccount := s.onboard(t, "user_2")
	rec = s.do(t, http.MethodPost, "/v1/transactions", other, txBody(otherAccount, 1))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDashboardAndBudget(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	token, accountID := s.onboard(t, "user_1")

	rec := s.do(t, http.MethodPut, "/v1/budget", token, map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/v1/budget", token, map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := txBody(accountID, 850)
	body["date"] = time.Now().UTC().Format(time.RFC3339)
	rec = s.do(t, http.MethodPost, "/v1/transactions", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/budget", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress struct {
		PercentageUsed  float64 `json:"percentageUsed"`
		CurrentExpenses string  `json:"currentExpenses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, 85.0, progress.PercentageUsed)
	assert.Equal(t, "850", progress.CurrentExpenses)

	rec = s.do(t, http.MethodGet, "/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"percentageUsed":85`)
}

func TestAccountsRequireIdentity(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})

	rec := s.do(t, http.MethodGet, "/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
}

func TestSetDefaultAccount(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	token, first := s.onboard(t, "user_1")

	rec := s.do(t, http.MethodPost, "/v1/accounts", token, map[string]any{"name": "Savings", "type": "SAVINGS"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var second domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	rec = s.do(t, http.MethodPut, "/v1/accounts/"+second.ID+"/default", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/accounts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Accounts []domain.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Accounts, 2)
	for _, a := range list.Accounts {
		assert.Equal(t, a.ID == second.ID, a.IsDefault)
	}

	rec = s.do(t, http.MethodPut, "/v1/accounts/"+first+"x/default", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsEndpoints(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})

	rec := s.do(t, http.MethodPost, "/internal/jobs/budget-alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, s.sweeps.calls)

	rec = s.do(t, http.MethodPost, "/internal/jobs/budget-alerts", "", nil, handler.JobsSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/internal/jobs/budget-alerts", "", nil, handler.JobsSecretHeader, jobsSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.sweeps.calls)
	assert.True(t, strings.Contains(rec.Body.String(), `"alerted":1`), rec.Body.String())

	rec = s.do(t, http.MethodGet, "/internal/jobs/budget-alerts/stats", "", nil, handler.JobsSecretHeader, jobsSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.AlertStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats.Outcomes, "alerted")
}

func TestJobsDisabledWithoutSecret(t *testing.T) {
	metrics := observability.NewMetrics()
	router := handler.NewRouter(nil, nil, handler.Jobs{}, metrics, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/budget-alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
