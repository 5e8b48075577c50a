package confirmation

import (
	"errors"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
)

var (
	ErrMissingOrderID   = errors.New("missing order id")
	ErrInvalidOutcome   = errors.New("desired outcome must be completed or failed")
	ErrUnexpectedStatus = errors.New("order is in an unexpected status")
	// ErrAborted wraps the context cause when the caller went away mid-flight.
	ErrAborted = errors.New("confirmation aborted")
	// ErrConflictLimit is returned when the re-read loop lost the
	// compare-and-swap more times than allowed. It is transient.
	ErrConflictLimit = errors.New("too many concurrent version conflicts")

	ErrInFlight          = errors.New("confirmation already in flight")
	ErrDisposed          = errors.New("confirmation view disposed")
	ErrNotRetryable      = errors.New("confirmation error is not retryable")
	ErrMaxRetriesReached = errors.New("maximum retries reached")
	ErrInvalidTransition = errors.New("invalid confirmation state transition")
)

// IsTransient reports whether a store error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable)
}

// IsAborted reports whether err comes from the caller going away rather than
// a failure. Bare context errors do not count: the engine wraps them in
// ErrAborted only when its own context ended.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, ErrDisposed)
}

// IsRetryable reports whether a failed confirmation may be attempted again:
// exhausted transient retries, a lost conflict race or a bare transient error.
func IsRetryable(err error) bool {
	return errors.Is(err, retry.ErrRetriesExhausted) ||
		errors.Is(err, ErrConflictLimit) ||
		IsTransient(err)
}

// IsFatal reports whether err must be shown without a retry option.
func IsFatal(err error) bool {
	return err != nil && !IsAborted(err) && !IsRetryable(err)
}
