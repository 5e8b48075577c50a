package constants

// contextKey is unexported so values stored by this module cannot collide
// with keys from other packages using the same string.
type contextKey string

const (
	HeaderXRequestId      = "x-request-id"
	HeaderXIdempotencyKey = "x-idempotency-key"

	ContextKeyRequestID      contextKey = HeaderXRequestId
	ContextKeyIdempotencyKey contextKey = HeaderXIdempotencyKey
)
