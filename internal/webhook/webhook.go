// Package webhook exposes the confirmation engine as a Restate virtual object
// keyed by order id. Restate serializes calls per key and retries transient
// failures durably; the engine keeps the write idempotent across those
// retries.
package webhook

import (
	"context"
	"errors"
	"fmt"

	restate "github.com/restatedev/sdk-go"

	"github.com/jcmexdev/order-confirmation/internal/confirmation"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
)

const stateKeyLast = "last"

type ConfirmRequest struct {
	Outcome string `json:"outcome"`
}

type ConfirmResponse struct {
	OrderID       string `json:"order_id"`
	Outcome       string `json:"outcome"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Version       int64  `json:"version"`
	Replayed      bool   `json:"replayed"`
}

// PaymentWebhook is bound with restate.Reflect. Its exported methods are
// the object's handlers.
type PaymentWebhook struct {
	confirmer confirmation.Confirmer
}

func NewPaymentWebhook(c confirmation.Confirmer) PaymentWebhook {
	return PaymentWebhook{confirmer: c}
}

// Confirm settles the order named by the object key.
func (w PaymentWebhook) Confirm(ctx restate.ObjectContext, req ConfirmRequest) (ConfirmResponse, error) {
	orderID := restate.Key(ctx)
	ctx.Log().Info("payment webhook received", "order_id", orderID, "outcome", req.Outcome)

	desired, err := parseOutcome(req.Outcome)
	if err != nil {
		return ConfirmResponse{}, restate.TerminalError(err, 400)
	}

	res, err := restate.Run(ctx, func(rc restate.RunContext) (ConfirmResponse, error) {
		return confirm(rc, w.confirmer, orderID, desired)
	})
	if err != nil {
		return ConfirmResponse{}, err
	}

	restate.Set(ctx, stateKeyLast, res)
	return res, nil
}

// Last returns the most recent confirmation recorded for the key.
func (PaymentWebhook) Last(ctx restate.ObjectSharedContext, _ restate.Void) (ConfirmResponse, error) {
	last, err := restate.Get[*ConfirmResponse](ctx, stateKeyLast)
	if err != nil {
		return ConfirmResponse{}, err
	}
	if last == nil {
		return ConfirmResponse{}, restate.TerminalError(fmt.Errorf("no confirmation recorded for %q", restate.Key(ctx)), 404)
	}
	return *last, nil
}

func parseOutcome(raw string) (domain.OrderStatus, error) {
	desired, err := domain.ParseStatus(raw)
	if err != nil {
		return "", err
	}
	if !desired.IsTerminal() {
		return "", fmt.Errorf("%w: got %q", confirmation.ErrInvalidOutcome, desired)
	}
	return desired, nil
}

// confirm runs the engine and marks errors that a retry cannot fix as
// terminal so Restate stops retrying them.
func confirm(ctx context.Context, c confirmation.Confirmer, orderID string, desired domain.OrderStatus) (ConfirmResponse, error) {
	res, err := c.Confirm(ctx, orderID, desired)
	if err != nil {
		if confirmation.IsFatal(err) {
			return ConfirmResponse{}, terminal(err)
		}
		return ConfirmResponse{}, err
	}
	return ConfirmResponse{
		OrderID:       res.Order.ID,
		Outcome:       string(res.Outcome),
		Status:        string(res.Order.Status),
		PaymentStatus: string(res.Order.PaymentStatus),
		Version:       res.Order.Version,
		Replayed:      res.Replayed(),
	}, nil
}

func terminal(err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return restate.TerminalError(err, 404)
	case errors.Is(err, confirmation.ErrMissingOrderID), errors.Is(err, confirmation.ErrInvalidOutcome):
		return restate.TerminalError(err, 400)
	case errors.Is(err, confirmation.ErrUnexpectedStatus):
		return restate.TerminalError(err, 409)
	default:
		return restate.TerminalError(err, 500)
	}
}
