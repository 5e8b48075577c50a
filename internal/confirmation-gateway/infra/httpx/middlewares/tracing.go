package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors/constants"
)

const tracerName = "github.com/jcmexdev/order-confirmation/internal/confirmation-gateway"

// AttachTracingMetadata stores the chi request id and the caller's
// idempotency key as typed context values, which the gRPC client interceptor
// forwards as metadata.
func AttachTracingMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		idempotencyKey := r.Header.Get(constants.HeaderXIdempotencyKey)

		ctx := context.WithValue(r.Context(), constants.ContextKeyRequestID, requestID)
		ctx = context.WithValue(ctx, constants.ContextKeyIdempotencyKey, idempotencyKey)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Trace continues the caller's W3C trace, if any, and opens a server span per
// request.
func Trace(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("http.request_id", middleware.GetReqID(r.Context())),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.response.status_code", ww.Status()))
	})
}
