package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/boddenberg/finance-tracker-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

// actionResponse is the envelope of the transaction endpoint.
type actionResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var rateLimited *domain.ErrRateLimited
	var blocked *domain.ErrRequestBlocked
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &blocked):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &circuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &external):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// setRateLimitHeaders adds Retry-After and X-RateLimit-Remaining for quota denials.
func setRateLimitHeaders(w http.ResponseWriter, err error) {
	var rl *domain.ErrRateLimited
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.ResetSeconds))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	}
}

func logServiceError(logger *zap.Logger, status int, err error) {
	switch {
	case status >= 500:
		logger.Error("unhandled error", zap.Error(err))
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusTooManyRequests:
		logger.Warn("request denied", zap.Int("status", status), zap.String("error", err.Error()))
	default:
		logger.Debug("request rejected", zap.Int("status", status), zap.String("error", err.Error()))
	}
}

// handleServiceError maps domain errors to {"error": "..."} responses.
// Unexpected failures are reported without internal detail.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := statusFor(err)
	logServiceError(logger, status, err)
	setRateLimitHeaders(w, err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// writeActionError writes {"success": false, "error": "<message>"}.
func writeActionError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := statusFor(err)
	logServiceError(logger, status, err)
	setRateLimitHeaders(w, err)
	writeJSON(w, status, actionResponse{Success: false, Error: err.Error()})
}
