package handler

import (
	"net/http"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// POST /v1/transactions
// ============================================================

// createTransactionHandler answers with {"success": bool, "data"|"error"}.
func createTransactionHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		caller := callerFrom(r)
		if caller.ExternalID == "" {
			writeActionError(w, &domain.ErrUnauthorized{}, logger)
			return
		}
		span.SetAttributes(attribute.String("user.external_id", caller.ExternalID))

		var req domain.CreateTransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeActionError(w, err, logger)
			return
		}

		tx, err := svc.CreateTransaction(ctx, caller, &req)
		if err != nil {
			writeActionError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, actionResponse{Success: true, Data: tx})
	}
}
