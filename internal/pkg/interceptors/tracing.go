package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors/constants"
)

// TraceServerInterceptor copies the request id and idempotency key from
// incoming metadata into typed context values and logs the call.
func TraceServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		requestID := firstMetadataValue(ctx, constants.HeaderXRequestId)
		idempotencyKey := firstMetadataValue(ctx, constants.HeaderXIdempotencyKey)

		ctx = context.WithValue(ctx, constants.ContextKeyRequestID, requestID)
		ctx = context.WithValue(ctx, constants.ContextKeyIdempotencyKey, idempotencyKey)

		logger.DebugContext(ctx, "grpc call",
			"method", info.FullMethod,
			"request_id", requestID,
			"idempotency_key", idempotencyKey,
		)
		return handler(ctx, req)
	}
}

// PropagateClientInterceptor forwards the request id and idempotency key held
// in ctx values as outgoing metadata.
func PropagateClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(WithOutgoingIDs(ctx), method, req, reply, cc, opts...)
	}
}

// WithOutgoingIDs appends the request id and idempotency key from ctx to the
// outgoing gRPC metadata, skipping empty values and keys already present.
func WithOutgoingIDs(ctx context.Context) context.Context {
	out, _ := metadata.FromOutgoingContext(ctx)
	for _, header := range []string{constants.HeaderXRequestId, constants.HeaderXIdempotencyKey} {
		if len(out.Get(header)) > 0 {
			continue
		}
		if v, ok := ctx.Value(contextKeyFor(header)).(string); ok && v != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, header, v)
		}
	}
	return ctx
}

// GetMetadataValue returns the value stored under key in ctx values, or the
// first incoming or outgoing metadata value with that name.
func GetMetadataValue(ctx context.Context, key string) string {
	for _, k := range []interface{}{contextKeyFor(key), key} {
		if k == nil {
			continue
		}
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			return v
		}
	}
	if v := firstMetadataValue(ctx, key); v != "" {
		return v
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func contextKeyFor(header string) interface{} {
	switch header {
	case constants.HeaderXRequestId:
		return constants.ContextKeyRequestID
	case constants.HeaderXIdempotencyKey:
		return constants.ContextKeyIdempotencyKey
	}
	return nil
}

func firstMetadataValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}
