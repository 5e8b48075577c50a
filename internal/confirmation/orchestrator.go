package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
)

type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateSuccess  State = "success"
	StateError    State = "error"
	StateRetrying State = "retrying"
)

type event string

const (
	eventMount     event = "mount"
	eventMissingID event = "missing_id"
	eventSucceeded event = "succeeded"
	eventFailed    event = "failed"
	eventRetry     event = "retry"
)

// transitions is the only way the orchestrator state changes.
var transitions = map[State]map[event]State{
	StateIdle: {
		eventMount:     StateLoading,
		eventMissingID: StateError,
	},
	StateLoading: {
		eventSucceeded: StateSuccess,
		eventFailed:    StateError,
	},
	StateError: {
		eventRetry: StateRetrying,
	},
	StateRetrying: {
		eventSucceeded: StateSuccess,
		eventFailed:    StateError,
	},
}

type ErrorKind string

const (
	ErrorKindFatal     ErrorKind = "fatal"
	ErrorKindRetryable ErrorKind = "retryable"
)

// View is a point-in-time snapshot of an orchestrator for rendering.
type View struct {
	State   State
	OrderID string
	Desired domain.OrderStatus

	// Order and Outcome are set in StateSuccess.
	Order   *domain.Order
	Outcome Outcome

	// Err and ErrorKind are set in StateError.
	Err       error
	ErrorKind ErrorKind

	// AutoAttempts is what the last run spent inside the retrier.
	AutoAttempts int
	// ManualRetries counts user-triggered retries; MaxAttempts bounds both
	// counters.
	ManualRetries    int
	MaxAttempts      int
	RetriesExhausted bool
	CanRetry         bool
	Disposed         bool

	Message string
}

type OrchestratorConfig struct {
	MaxAttempts int
	Logger      *slog.Logger
}

// Orchestrator runs one confirmation for one view: a mount, then any number
// of manual retries up to MaxAttempts. At most one Confirm call is in flight
// at a time. Dispose aborts the in-flight call and freezes the state.
type Orchestrator struct {
	confirmer Confirmer
	guard     *Guard
	orderID   string
	desired   domain.OrderStatus
	max       int
	log       *slog.Logger

	mu               sync.Mutex
	state            State
	inFlight         bool
	result           Result
	err              error
	kind             ErrorKind
	autoAttempts     int
	manualRetries    int
	retriesExhausted bool
}

// NewOrchestrator binds a view to orderID. parent bounds the lifetime of
// every call; cancelling it has the same effect as Dispose.
func NewOrchestrator(parent context.Context, c Confirmer, orderID string, desired domain.OrderStatus, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = retry.DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	orderID = strings.TrimSpace(orderID)
	return &Orchestrator{
		confirmer: c,
		guard:     NewGuard(parent),
		orderID:   orderID,
		desired:   desired,
		max:       cfg.MaxAttempts,
		log:       logger.With("component", "confirmation-orchestrator", "order_id", orderID),
		state:     StateIdle,
	}
}

// Mount starts the confirmation. A missing order id goes straight to a fatal
// error without calling the engine. Mounting a settled view returns its
// current snapshot.
//
// The returned error reports why the call was refused (ErrInFlight,
// ErrDisposed) or that it was aborted (ErrAborted); confirmation failures are
// carried in View.Err.
func (o *Orchestrator) Mount() (View, error) {
	o.mu.Lock()
	if v, proceed, err := o.beginMount(); !proceed {
		o.mu.Unlock()
		return v, err
	}
	return o.run()
}

// Start is Mount without waiting for the engine. It returns the Loading
// snapshot and settles the view in the background; callers poll View.
func (o *Orchestrator) Start() (View, error) {
	o.mu.Lock()
	if v, proceed, err := o.beginMount(); !proceed {
		o.mu.Unlock()
		return v, err
	}
	ctx := o.launch()
	v := o.viewLocked()
	o.mu.Unlock()

	go func() {
		res, err := o.confirmer.Confirm(ctx, o.orderID, o.desired)
		if _, err := o.settle(ctx, res, err); err != nil {
			o.log.Debug("background confirmation ended", "error", err)
		}
	}()
	return v, nil
}

// beginMount runs with o.mu held. proceed is false when the view must not
// call the engine; v and err are then the answer to the caller.
func (o *Orchestrator) beginMount() (v View, proceed bool, err error) {
	switch {
	case o.guard.Disposed():
		return o.viewLocked(), false, ErrDisposed
	case o.inFlight:
		return o.viewLocked(), false, ErrInFlight
	case o.state != StateIdle:
		return o.viewLocked(), false, nil
	}

	if o.orderID == "" {
		if err := o.fire(eventMissingID); err != nil {
			return o.viewLocked(), false, err
		}
		o.err, o.kind = ErrMissingOrderID, ErrorKindFatal
		o.log.Warn("confirmation view mounted without an order id")
		return o.viewLocked(), false, nil
	}

	if err := o.fire(eventMount); err != nil {
		return o.viewLocked(), false, err
	}
	return View{}, true, nil
}

// Retry re-runs a failed confirmation. It is refused while a call is in
// flight, for fatal errors and once MaxAttempts manual retries were used.
func (o *Orchestrator) Retry() (View, error) {
	o.mu.Lock()

	var refused error
	switch {
	case o.guard.Disposed():
		refused = ErrDisposed
	case o.inFlight:
		refused = ErrInFlight
	case o.state != StateError:
		refused = fmt.Errorf("%w: retry from %s", ErrInvalidTransition, o.state)
	case o.kind == ErrorKindFatal:
		refused = ErrNotRetryable
	case o.manualRetries >= o.max:
		refused = ErrMaxRetriesReached
	}
	if refused != nil {
		defer o.mu.Unlock()
		return o.viewLocked(), refused
	}

	if err := o.fire(eventRetry); err != nil {
		defer o.mu.Unlock()
		return o.viewLocked(), err
	}
	o.manualRetries++
	o.log.Info("manual retry", "retry", o.manualRetries, "max", o.max)
	return o.run()
}

// Dispose aborts any in-flight call. Later Mount and Retry calls are refused.
func (o *Orchestrator) Dispose() {
	o.guard.Dispose()
}

func (o *Orchestrator) Disposed() bool {
	return o.guard.Disposed()
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// run is entered with o.mu held and the state already moved to Loading or
// Retrying. It releases the lock for the duration of the engine call.
func (o *Orchestrator) run() (View, error) {
	ctx := o.launch()
	o.mu.Unlock()

	res, err := o.confirmer.Confirm(ctx, o.orderID, o.desired)
	return o.settle(ctx, res, err)
}

func (o *Orchestrator) launch() context.Context {
	o.inFlight = true
	return o.guard.Context()
}

// settle records the outcome of an engine call started by launch.
func (o *Orchestrator) settle(ctx context.Context, res Result, err error) (View, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// A disposed view is never updated again.
	if o.guard.Disposed() {
		o.log.Debug("confirmation aborted", "cause", o.guard.Cause())
		if err == nil || !errors.Is(err, ErrAborted) {
			err = fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
		}
		return o.viewLocked(), err
	}
	o.inFlight = false

	if err == nil {
		if ferr := o.fire(eventSucceeded); ferr != nil {
			return o.viewLocked(), ferr
		}
		o.result, o.err, o.kind = res, nil, ""
		o.autoAttempts = res.Attempts
		o.retriesExhausted = false
		return o.viewLocked(), nil
	}

	if ferr := o.fire(eventFailed); ferr != nil {
		return o.viewLocked(), ferr
	}
	o.err = err
	o.kind = ErrorKindRetryable
	if IsFatal(err) {
		o.kind = ErrorKindFatal
	}
	o.autoAttempts = res.Attempts
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		o.autoAttempts = exhausted.Attempts
	}
	o.retriesExhausted = errors.Is(err, retry.ErrRetriesExhausted)
	return o.viewLocked(), nil
}

func (o *Orchestrator) fire(ev event) error {
	next, ok := transitions[o.state][ev]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, o.state)
	}
	o.state = next
	return nil
}

func (o *Orchestrator) viewLocked() View {
	v := View{
		State:            o.state,
		OrderID:          o.orderID,
		Desired:          o.desired,
		AutoAttempts:     o.autoAttempts,
		ManualRetries:    o.manualRetries,
		MaxAttempts:      o.max,
		RetriesExhausted: o.retriesExhausted,
		Disposed:         o.guard.Disposed(),
	}
	switch o.state {
	case StateSuccess:
		order := o.result.Order
		v.Order = &order
		v.Outcome = o.result.Outcome
	case StateError:
		v.Err = o.err
		v.ErrorKind = o.kind
		v.CanRetry = o.kind == ErrorKindRetryable && o.manualRetries < o.max && !v.Disposed && !o.inFlight
	}
	v.Message = message(v)
	return v
}

func message(v View) string {
	switch v.State {
	case StateIdle:
		return ""
	case StateLoading, StateRetrying:
		return "Confirming your payment..."
	case StateSuccess:
		switch {
		case v.Outcome == OutcomeKeptExisting:
			return fmt.Sprintf("This order was already marked %s.", v.Order.Status)
		case v.Desired == domain.StatusCompleted:
			return "Payment confirmed."
		default:
			return "Payment was not completed."
		}
	}

	switch {
	case errors.Is(v.Err, ErrMissingOrderID):
		return "No order was provided. Please return to checkout."
	case errors.Is(v.Err, domain.ErrOrderNotFound):
		return "We could not find this order. Please return to checkout."
	case v.ErrorKind == ErrorKindFatal:
		return "This order cannot be confirmed. Please contact support."
	case v.CanRetry:
		return fmt.Sprintf("We could not confirm your payment after %d attempts. Retry %d of %d available.",
			v.AutoAttempts, v.ManualRetries+1, v.MaxAttempts)
	default:
		return "Maximum retries reached. Please contact support."
	}
}
