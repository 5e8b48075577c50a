package confirmation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
)

type confirmerFunc func(ctx context.Context, orderID string, desired domain.OrderStatus) (Result, error)

func (f confirmerFunc) Confirm(ctx context.Context, orderID string, desired domain.OrderStatus) (Result, error) {
	return f(ctx, orderID, desired)
}

func newTestOrchestrator(c Confirmer, orderID string, maxAttempts int) *Orchestrator {
	return NewOrchestrator(context.Background(), c, orderID, domain.StatusCompleted, OrchestratorConfig{MaxAttempts: maxAttempts})
}

func TestOrchestrator_MissingOrderIDIsFatalWithoutCalls(t *testing.T) {
	var calls atomic.Int32
	c := confirmerFunc(func(context.Context, string, domain.OrderStatus) (Result, error) {
		calls.Add(1)
		return Result{}, nil
	})
	o := newTestOrchestrator(c, " ", 3)

	view, err := o.Mount()

	require.NoError(t, err)
	assert.Equal(t, StateError, view.State)
	assert.ErrorIs(t, view.Err, ErrMissingOrderID)
	assert.Equal(t, ErrorKindFatal, view.ErrorKind)
	assert.False(t, view.CanRetry)
	assert.Contains(t, view.Message, "No order")

	_, err = o.Retry()
	assert.ErrorIs(t, err, ErrNotRetryable)
	assert.Zero(t, calls.Load())
}

func TestOrchestrator_MountSucceeds(t *testing.T) {
	store := newFlakyStore()
	store.seed(t, pendingOrder("ord-001"))
	o := newTestOrchestrator(NewEngine(store, fastConfig()), "ord-001", 3)

	view, err := o.Mount()

	require.NoError(t, err)
	assert.Equal(t, StateSuccess, view.State)
	assert.Equal(t, OutcomeTransitioned, view.Outcome)
	require.NotNil(t, view.Order)
	assert.Equal(t, domain.StatusCompleted, view.Order.Status)
	assert.Equal(t, 1, view.AutoAttempts)
	assert.Equal(t, "Payment confirmed.", view.Message)

	// A duplicate mount after settling re-renders without another call.
	again, err := o.Mount()
	require.NoError(t, err)
	assert.Equal(t, view.Order, again.Order)
	_, writes := store.counts()
	assert.Equal(t, 1, writes)

	_, err = o.Retry()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrchestrator_NotFoundIsNotRetryable(t *testing.T) {
	store := newFlakyStore()
	o := newTestOrchestrator(NewEngine(store, fastConfig()), "ord-404", 3)

	view, err := o.Mount()

	require.NoError(t, err)
	assert.Equal(t, StateError, view.State)
	assert.Equal(t, ErrorKindFatal, view.ErrorKind)
	assert.ErrorIs(t, view.Err, domain.ErrOrderNotFound)
	assert.False(t, view.CanRetry)

	_, err = o.Retry()
	assert.ErrorIs(t, err, ErrNotRetryable)
	reads, _ := store.counts()
	assert.Equal(t, 1, reads)
}

func TestOrchestrator_ManualRetryAfterExhaustion(t *testing.T) {
	store := newFlakyStore()
	store.seed(t, pendingOrder("ord-001"))
	store.readFailures = 3
	o := newTestOrchestrator(NewEngine(store, fastConfig()), "ord-001", 3)

	view, err := o.Mount()
	require.NoError(t, err)
	assert.Equal(t, StateError, view.State)
	assert.Equal(t, ErrorKindRetryable, view.ErrorKind)
	assert.True(t, view.RetriesExhausted)
	assert.True(t, view.CanRetry)
	assert.Equal(t, 3, view.AutoAttempts)
	assert.Zero(t, view.ManualRetries)
	assert.Contains(t, view.Message, "Retry 1 of 3")

	view, err = o.Retry()
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, view.State)
	assert.Equal(t, 1, view.ManualRetries)
	assert.Equal(t, 1, view.AutoAttempts)
	assert.False(t, view.RetriesExhausted)
}

func TestOrchestrator_MaxRetriesReached(t *testing.T) {
	store := newFlakyStore()
	store.seed(t, pendingOrder("ord-001"))
	store.readFailures = 1000
	cfg := fastConfig()
	cfg.Read = fastPolicy(2)
	o := newTestOrchestrator(NewEngine(store, cfg), "ord-001", 2)

	_, err := o.Mount()
	require.NoError(t, err)

	view, err := o.Retry()
	require.NoError(t, err)
	assert.Equal(t, 1, view.ManualRetries)
	assert.True(t, view.CanRetry)

	view, err = o.Retry()
	require.NoError(t, err)
	assert.Equal(t, 2, view.ManualRetries)
	assert.False(t, view.CanRetry)
	assert.Contains(t, view.Message, "Maximum retries reached")

	_, err = o.Retry()
	assert.ErrorIs(t, err, ErrMaxRetriesReached)

	reads, writes := store.counts()
	assert.Equal(t, 6, reads)
	assert.Zero(t, writes)
}

func TestOrchestrator_RejectsReentrantCalls(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c := confirmerFunc(func(context.Context, string, domain.OrderStatus) (Result, error) {
		close(entered)
		<-release
		return Result{Order: domain.Order{ID: "ord-001", Status: domain.StatusCompleted}, Outcome: OutcomeTransitioned, Attempts: 1}, nil
	})
	o := newTestOrchestrator(c, "ord-001", 3)

	done := make(chan View)
	go func() {
		view, err := o.Mount()
		assert.NoError(t, err)
		done <- view
	}()
	<-entered

	view, err := o.Mount()
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, StateLoading, view.State)

	_, err = o.Retry()
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	select {
	case view := <-done:
		assert.Equal(t, StateSuccess, view.State)
	case <-time.After(5 * time.Second):
		t.Fatal("mount did not finish")
	}
}

func TestOrchestrator_DisposeMidReadAbortsWithoutMutation(t *testing.T) {
	store := newFlakyStore()
	store.seed(t, pendingOrder("ord-001"))
	entered := make(chan struct{})
	store.beforeRead = func(ctx context.Context, n int) {
		if n == 1 {
			close(entered)
			<-ctx.Done()
		}
	}
	o := newTestOrchestrator(NewEngine(store, fastConfig()), "ord-001", 3)

	type mountResult struct {
		view View
		err  error
	}
	done := make(chan mountResult)
	go func() {
		view, err := o.Mount()
		done <- mountResult{view, err}
	}()
	<-entered
	o.Dispose()

	var res mountResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("mount did not return after dispose")
	}

	require.ErrorIs(t, res.err, ErrAborted)
	assert.Equal(t, StateLoading, res.view.State)
	assert.Nil(t, res.view.Err)
	assert.Nil(t, res.view.Order)
	assert.True(t, res.view.Disposed)

	assert.Equal(t, StateLoading, o.View().State)
	_, err := o.Retry()
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = o.Mount()
	assert.ErrorIs(t, err, ErrDisposed)

	reads, writes := store.counts()
	assert.Equal(t, 1, reads)
	assert.Zero(t, writes)

	stored, err := store.inner.ReadOrder(context.Background(), "ord-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestOrchestrator_TransitionTable(t *testing.T) {
	o := newTestOrchestrator(nil, "ord-001", 3)

	assert.ErrorIs(t, o.fire(eventSucceeded), ErrInvalidTransition)
	assert.Equal(t, StateIdle, o.state)

	require.NoError(t, o.fire(eventMount))
	require.NoError(t, o.fire(eventFailed))
	require.NoError(t, o.fire(eventRetry))
	assert.Equal(t, StateRetrying, o.state)
	require.NoError(t, o.fire(eventSucceeded))
	assert.ErrorIs(t, o.fire(eventRetry), ErrInvalidTransition)
	assert.Equal(t, StateSuccess, o.state)
}

func TestOrchestrator_StoreTimeoutLeavesViewRetryable(t *testing.T) {
	store := newFlakyStore()
	store.seed(t, pendingOrder("ord-001"))
	store.readFailures = 3
	store.failWith = context.DeadlineExceeded
	o := newTestOrchestrator(NewEngine(store, fastConfig()), "ord-001", 3)

	view, err := o.Mount()

	require.NoError(t, err)
	assert.Equal(t, StateError, view.State)
	assert.Equal(t, ErrorKindRetryable, view.ErrorKind)
	assert.False(t, view.Disposed)
	assert.True(t, view.CanRetry)

	view, err = o.Retry()
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, view.State)
	assert.Equal(t, 1, view.ManualRetries)
}

func TestOrchestrator_AbortErrorWithoutDisposeIsRetryable(t *testing.T) {
	calls := 0
	c := confirmerFunc(func(context.Context, string, domain.OrderStatus) (Result, error) {
		calls++
		if calls == 1 {
			return Result{}, fmt.Errorf("%w: upstream gave up", ErrAborted)
		}
		return Result{Order: domain.Order{ID: "ord-001", Status: domain.StatusCompleted}, Outcome: OutcomeTransitioned, Attempts: 1}, nil
	})
	o := newTestOrchestrator(c, "ord-001", 3)

	view, err := o.Mount()
	require.NoError(t, err)
	assert.Equal(t, StateError, view.State)
	assert.True(t, view.CanRetry)

	view, err = o.Retry()
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, view.State)
}

func TestOrchestrator_StartReturnsBeforeTheEngine(t *testing.T) {
	release := make(chan struct{})
	c := confirmerFunc(func(ctx context.Context, orderID string, _ domain.OrderStatus) (Result, error) {
		<-release
		return Result{Order: domain.Order{ID: orderID, Status: domain.StatusCompleted}, Outcome: OutcomeTransitioned, Attempts: 1}, nil
	})
	o := newTestOrchestrator(c, "ord-001", 3)

	view, err := o.Start()
	require.NoError(t, err)
	assert.Equal(t, StateLoading, view.State)
	assert.False(t, view.CanRetry)

	_, err = o.Mount()
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	assert.Eventually(t, func() bool {
		return o.View().State == StateSuccess
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_StartWithoutOrderIDIsFatal(t *testing.T) {
	o := newTestOrchestrator(confirmerFunc(func(context.Context, string, domain.OrderStatus) (Result, error) {
		t.Fatal("engine must not be called")
		return Result{}, nil
	}), "", 3)

	view, err := o.Start()

	require.NoError(t, err)
	assert.Equal(t, StateError, view.State)
	assert.Equal(t, ErrorKindFatal, view.ErrorKind)
}

func TestOrchestrator_DisposeDuringStart(t *testing.T) {
	aborted := make(chan error, 1)
	c := confirmerFunc(func(ctx context.Context, _ string, _ domain.OrderStatus) (Result, error) {
		<-ctx.Done()
		aborted <- context.Cause(ctx)
		return Result{}, fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
	})
	o := newTestOrchestrator(c, "ord-001", 3)

	_, err := o.Start()
	require.NoError(t, err)
	o.Dispose()

	select {
	case cause := <-aborted:
		assert.ErrorIs(t, cause, ErrDisposed)
	case <-time.After(time.Second):
		t.Fatal("engine call was not cancelled")
	}
	view := o.View()
	assert.True(t, view.Disposed)
	assert.Equal(t, StateLoading, view.State)
	_, err = o.Retry()
	assert.ErrorIs(t, err, ErrDisposed)
}
