// Package retry runs fallible operations under a bounded exponential backoff.
//
// The delay before retry n (0-based) is min(BaseDelay*2^n, MaxDelay). Only
// errors the caller classifies as transient are retried; everything else is
// returned after the first attempt. Exhausting the budget wraps the last
// error in an *ExhaustedError.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 5 * time.Second
)

// ErrRetriesExhausted is matched by errors.Is on every *ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError carries the last transient error after the attempt budget
// ran out.
type ExhaustedError struct {
	Attempts    int
	MaxAttempts int
	Err         error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d of %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.MaxAttempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// Policy bounds a single retried operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Notify, when set, is called before each backoff sleep with the error
	// that triggered it, the attempt that failed (1-based) and the delay.
	Notify func(err error, attempt int, delay time.Duration)
}

// DefaultPolicy returns 3 attempts, 1s base and 5s cap.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// Normalized replaces non-positive fields with defaults and keeps
// MaxDelay >= BaseDelay.
func (p Policy) Normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Do runs op until it succeeds, fails with a non-transient error, the budget
// is exhausted or ctx ends. It returns the value, the number of attempts made
// and the error. A cancelled ctx is returned as the context cause and never
// consumes further attempts.
func Do[T any](ctx context.Context, p Policy, transient Classifier, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	p = p.Normalized()

	attempts := 0
	operation := func() (T, error) {
		var zero T
		if ctx.Err() != nil {
			return zero, backoff.Permanent(context.Cause(ctx))
		}
		attempts++
		v, err := op(ctx, attempts)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(context.Cause(ctx))
		}
		if transient == nil || !transient(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, delay time.Duration) {
			p.Notify(err, attempts, delay)
		}))
	}

	v, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return v, attempts, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctx.Err() != nil {
		return v, attempts, err
	}
	if transient != nil && transient(err) {
		return v, attempts, &ExhaustedError{Attempts: attempts, MaxAttempts: p.MaxAttempts, Err: err}
	}
	return v, attempts, err
}
