package httpx

import (
	"errors"
	"time"

	"github.com/jcmexdev/order-confirmation/internal/confirmation"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
)

func mapOrderToResponse(o domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Version:       o.Version,
		ProgramTitle:  o.ProgramTitle,
		Email:         o.Email,
		Amount:        o.Amount.StringFixed(2),
	}
	if !o.UpdatedAt.IsZero() {
		resp.UpdatedAt = o.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func mapViewToResponse(id string, v confirmation.View) ViewResponse {
	resp := ViewResponse{
		ID:       id,
		State:    string(v.State),
		OrderID:  v.OrderID,
		Desired:  string(v.Desired),
		Outcome:  string(v.Outcome),
		CanRetry: v.CanRetry,
		Message:  v.Message,
		Attempts: AttemptsResponse{
			Automatic: v.AutoAttempts,
			Manual:    v.ManualRetries,
			Max:       v.MaxAttempts,
			Exhausted: v.RetriesExhausted,
		},
	}
	if v.Order != nil {
		order := mapOrderToResponse(*v.Order)
		resp.Order = &order
		resp.Replayed = v.Outcome != confirmation.OutcomeTransitioned
	}
	if v.Err != nil {
		resp.Error = &ViewError{
			Code:    errorCode(v.Err),
			Kind:    string(v.ErrorKind),
			Message: v.Err.Error(),
		}
	}
	return resp
}

// errorCode is the stable machine-readable name of a confirmation error.
func errorCode(err error) string {
	switch {
	case errors.Is(err, confirmation.ErrMissingOrderID):
		return "missing_order_id"
	case errors.Is(err, confirmation.ErrInvalidOutcome), errors.Is(err, domain.ErrInvalidStatus):
		return "invalid_outcome"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, confirmation.ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, retry.ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, confirmation.ErrConflictLimit):
		return "conflict_limit"
	case confirmation.IsTransient(err):
		return "store_unavailable"
	case confirmation.IsAborted(err):
		return "aborted"
	case errors.Is(err, confirmation.ErrInFlight):
		return "in_flight"
	case errors.Is(err, confirmation.ErrNotRetryable):
		return "not_retryable"
	case errors.Is(err, confirmation.ErrMaxRetriesReached):
		return "max_retries_reached"
	case errors.Is(err, confirmation.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}
