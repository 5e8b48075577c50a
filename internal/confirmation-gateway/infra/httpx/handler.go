package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/order-confirmation/internal/confirmation"
	"github.com/jcmexdev/order-confirmation/internal/confirmation-gateway/app"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors/constants"
)

// Handler serves the redirect targets of the payment gateway, the view
// resources they create and the server-to-server webhook.
type Handler struct {
	views     *app.Registry
	confirmer confirmation.Confirmer
	log       *slog.Logger
}

func NewHandler(views *app.Registry, confirmer confirmation.Confirmer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{views: views, confirmer: confirmer, log: logger.With("component", "http-handler")}
}

// PaymentSuccess is the redirect target for approved payments.
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	h.mount(w, r, domain.StatusCompleted)
}

// PaymentFailure is the redirect target for declined or abandoned payments.
func (h *Handler) PaymentFailure(w http.ResponseWriter, r *http.Request) {
	h.mount(w, r, domain.StatusFailed)
}

func (h *Handler) mount(w http.ResponseWriter, r *http.Request, desired domain.OrderStatus) {
	orderID := r.URL.Query().Get("order_id")
	id, orch := h.views.Open(r.Context(), orderID, desired)

	requestID, _ := r.Context().Value(constants.ContextKeyRequestID).(string)
	h.log.InfoContext(r.Context(), "mounting confirmation view",
		"view_id", id,
		"order_id", orderID,
		"desired", desired,
		"request_id", requestID,
	)

	// The confirmation settles in the background; the page polls Location
	// and deletes it when the user leaves.
	view, err := orch.Start()
	if err != nil {
		h.writeRefusal(w, r, err)
		return
	}
	w.Header().Set("Location", "/views/"+id)
	writeJSON(w, http.StatusAccepted, mapViewToResponse(id, view))
}

func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch, err := h.views.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "view_not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mapViewToResponse(id, orch.View()))
}

// RetryView is the manual retry action of an errored view.
func (h *Handler) RetryView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch, err := h.views.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "view_not_found", err.Error())
		return
	}

	view, err := h.disposeOnDisconnect(r.Context(), id, orch.Retry)
	if err != nil {
		h.writeRefusal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapViewToResponse(id, view))
}

// DisposeView is called when the user navigates away from the page.
func (h *Handler) DisposeView(w http.ResponseWriter, r *http.Request) {
	if err := h.views.Dispose(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "view_not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PaymentWebhook confirms an order on behalf of the payment gateway. It runs
// the engine directly; there is no view to poll.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	desired, err := domain.ParseStatus(req.Outcome)
	if err == nil && !desired.IsTerminal() {
		err = confirmation.ErrInvalidOutcome
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_outcome", err.Error())
		return
	}

	res, err := h.confirmer.Confirm(r.Context(), req.OrderID, desired)
	if err != nil {
		writeError(w, statusFor(err), errorCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Outcome:  string(res.Outcome),
		Replayed: res.Replayed(),
		Attempts: res.Attempts,
		Order:    mapOrderToResponse(res.Order),
	})
}

// disposeOnDisconnect runs call and disposes the view if the client goes away
// before it returns.
func (h *Handler) disposeOnDisconnect(ctx context.Context, id string, call func() (confirmation.View, error)) (confirmation.View, error) {
	stop := context.AfterFunc(ctx, func() {
		if err := h.views.Dispose(id); err == nil {
			h.log.Info("client disconnected, confirmation view disposed", "view_id", id)
		}
	})
	defer stop()
	return call()
}

func (h *Handler) writeRefusal(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusConflict
	if errors.Is(err, confirmation.ErrDisposed) || confirmation.IsAborted(err) {
		status = http.StatusGone
	}
	h.log.DebugContext(r.Context(), "confirmation view refused request", "error", err)
	writeError(w, status, errorCode(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, confirmation.ErrMissingOrderID), errors.Is(err, confirmation.ErrInvalidOutcome):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, confirmation.ErrUnexpectedStatus):
		return http.StatusUnprocessableEntity
	case confirmation.IsRetryable(err), confirmation.IsAborted(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
