package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("flaky")
	errFatal = errors.New("fatal")
)

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func fastPolicy(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	for k := 0; k < 3; k++ {
		calls := 0
		v, attempts, err := Do(context.Background(), fastPolicy(3), isFlaky, func(ctx context.Context, attempt int) (string, error) {
			calls++
			assert.Equal(t, calls, attempt)
			if calls <= k {
				return "", errFlaky
			}
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, k+1, attempts)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	_, attempts, err := Do(context.Background(), fastPolicy(3), isFlaky, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errFlaky
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	_, attempts, err := Do(context.Background(), fastPolicy(3), isFlaky, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errFatal
	})

	assert.ErrorIs(t, err, errFatal)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDo_DelaySchedule(t *testing.T) {
	var (
		mu     sync.Mutex
		delays []time.Duration
		failed []int
	)
	p := Policy{MaxAttempts: 5, BaseDelay: 2 * time.Millisecond, MaxDelay: 5 * time.Millisecond}
	p.Notify = func(err error, attempt int, delay time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, delay)
		failed = append(failed, attempt)
	}

	_, _, err := Do(context.Background(), p, isFlaky, func(ctx context.Context, attempt int) (int, error) {
		return 0, errFlaky
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)

	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}
	require.Len(t, delays, len(want))
	for i := range want {
		assert.InDelta(t, float64(want[i]), float64(delays[i]), float64(100*time.Microsecond), "delay %d", i)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, failed)
}

func TestDo_CancelStopsConsumingAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, _, err = Do(ctx, p, isFlaky, func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, errFlaky
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, attempts, err := Do(ctx, fastPolicy(3), isFlaky, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 1, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, attempts)
}

func TestPolicy_Normalized(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Second}.Normalized()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)

	assert.Equal(t, DefaultPolicy(), Policy{}.Normalized())
}
