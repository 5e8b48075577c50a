package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/order-confirmation/internal/confirmation-gateway/infra/httpx/middlewares"
)

func NewRouter(handler *Handler, health *Health) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middlewares.Trace)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/livez", health.Live)
	r.Get("/readyz", health.Ready)
	r.Post("/drain", health.Drain)

	r.Get("/payment/success", handler.PaymentSuccess)
	r.Get("/payment/failure", handler.PaymentFailure)

	r.Get("/views/{id}", handler.GetView)
	r.Post("/views/{id}/retry", handler.RetryView)
	r.Delete("/views/{id}", handler.DisposeView)

	r.Post("/webhooks/payment", handler.PaymentWebhook)
	return r
}
