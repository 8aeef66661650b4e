package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/logging"
	"github.com/jmylchreest/consult-billing/internal/repository"
	"github.com/jmylchreest/consult-billing/internal/service"
)

// billingError maps engine and storage errors onto HTTP errors. Anything
// unrecognised is logged and reported as a 500 without internal detail.
func billingError(ctx context.Context, logger *slog.Logger, op string, err error) error {
	var dup *billing.DuplicateSessionError
	switch {
	case errors.As(err, &dup):
		return huma.Error409Conflict("consumer already has a live session", &huma.ErrorDetail{
			Location: "session_id",
			Value:    dup.SessionID,
		})
	case errors.Is(err, billing.ErrSessionNotFound):
		return huma.Error404NotFound("session not found")
	case errors.Is(err, billing.ErrInvalidRole):
		return huma.Error403Forbidden("party is not a billable consumer")
	case errors.Is(err, billing.ErrInvalidRate):
		return huma.Error422UnprocessableEntity("provider has no positive rate")
	case errors.Is(err, billing.ErrInvalidSessionType):
		return huma.Error422UnprocessableEntity("session_type must be chat or call")
	case errors.Is(err, repository.ErrInvalidAmount):
		return huma.Error422UnprocessableEntity("amount must be positive")
	case errors.Is(err, service.ErrRechargeTooLarge):
		return huma.Error422UnprocessableEntity("recharge amount exceeds the maximum")
	case errors.Is(err, billing.ErrWriteConflict):
		return huma.Error409Conflict("concurrent update, please retry")
	case errors.Is(err, billing.ErrEngineClosed):
		return huma.Error503ServiceUnavailable("billing is shutting down")
	}

	logging.FromContext(ctx, logger).Error(op+" failed", "error", err)
	return huma.Error500InternalServerError(op + " failed")
}
