// Package confirmation drives orders from pending to a terminal outcome
// exactly once.
//
// The Engine reads the order, short-circuits when it is already settled and
// otherwise issues a single version-guarded write, re-reading on conflict.
// Reads and writes run under independent retry budgets. The Orchestrator
// binds an Engine call to one confirmation view and owns its retry counters
// and cancellation.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/order-confirmation/internal/confirmation/journal"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
)

const DefaultMaxConflicts = 5

const tracerName = "github.com/jcmexdev/order-confirmation/internal/confirmation"

// Outcome tells a fresh transition apart from an idempotent replay.
type Outcome string

const (
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeReplayed     Outcome = "replayed"
	// OutcomeKeptExisting means the order had already settled on the other
	// terminal outcome and was left untouched.
	OutcomeKeptExisting Outcome = "kept_existing"
)

// Result is the settled order plus counters describing how it got there.
type Result struct {
	Order   domain.Order
	Outcome Outcome

	// Attempts is the highest attempt count any single store call needed.
	Attempts int
	// Reads and Writes count every store call issued, retries included.
	Reads     int
	Writes    int
	Conflicts int
}

// Replayed reports whether the call ended without writing.
func (r Result) Replayed() bool {
	return r.Outcome != OutcomeTransitioned
}

// Config bounds the engine. Read and Write are separate budgets: a write that
// needs retries does not eat into the read budget.
type Config struct {
	Read         retry.Policy
	Write        retry.Policy
	MaxConflicts int
}

func DefaultConfig() Config {
	return Config{
		Read:         retry.DefaultPolicy(),
		Write:        retry.DefaultPolicy(),
		MaxConflicts: DefaultMaxConflicts,
	}
}

func (c Config) normalized() Config {
	c.Read = c.Read.Normalized()
	c.Write = c.Write.Normalized()
	if c.MaxConflicts <= 0 {
		c.MaxConflicts = DefaultMaxConflicts
	}
	return c
}

// Confirmer is what the Orchestrator and the HTTP/webhook surfaces call.
type Confirmer interface {
	Confirm(ctx context.Context, orderID string, desired domain.OrderStatus) (Result, error)
}

var _ Confirmer = (*Engine)(nil)

type Engine struct {
	store   storage.OrderStore
	cfg     Config
	journal journal.Repository
	log     *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Engine)

// WithJournal appends every decision to repo. Journal failures are logged
// and never fail a confirmation.
func WithJournal(repo journal.Repository) Option {
	return func(e *Engine) { e.journal = repo }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

func NewEngine(store storage.OrderStore, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		cfg:    cfg.normalized(),
		log:    slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "confirmation-engine")
	return e
}

// Confirm drives orderID to desired, which must be StatusCompleted or
// StatusFailed. An order that already reads terminal is returned as is,
// without a write, whatever the requested outcome.
//
// Errors: ErrMissingOrderID and ErrInvalidOutcome before any store call;
// domain.ErrOrderNotFound when the order does not exist; *retry.ExhaustedError
// when a store call ran out of attempts; ErrConflictLimit when the order kept
// changing under us; ErrAborted when ctx ended first.
func (e *Engine) Confirm(ctx context.Context, orderID string, desired domain.OrderStatus) (Result, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Result{}, ErrMissingOrderID
	}
	if !desired.IsTerminal() {
		return Result{}, fmt.Errorf("%w: got %q", ErrInvalidOutcome, desired)
	}

	ctx, span := e.tracer.Start(ctx, "confirmation.Confirm", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.desired", string(desired)),
	))
	defer span.End()

	res, err := e.confirm(ctx, orderID, desired)
	span.SetAttributes(
		attribute.Int("confirmation.attempts", res.Attempts),
		attribute.Int("confirmation.conflicts", res.Conflicts),
	)

	switch {
	case err == nil:
		span.SetAttributes(attribute.String("confirmation.outcome", string(res.Outcome)))
		e.log.InfoContext(ctx, "order confirmed",
			"order_id", orderID,
			"desired", desired,
			"outcome", res.Outcome,
			"status", res.Order.Status,
			"version", res.Order.Version,
			"attempts", res.Attempts,
		)
	case IsAborted(err):
		span.SetStatus(codes.Error, "aborted")
		e.log.DebugContext(ctx, "confirmation aborted", "order_id", orderID, "error", err)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.record(ctx, orderID, desired, journal.DecisionFailed, res.Order, res.Attempts, err)
		e.log.WarnContext(ctx, "confirmation failed",
			"order_id", orderID,
			"desired", desired,
			"attempts", res.Attempts,
			"error", err,
		)
	}
	return res, err
}

func (e *Engine) confirm(ctx context.Context, orderID string, desired domain.OrderStatus) (Result, error) {
	var res Result

	order, err := e.read(ctx, orderID, &res)
	if err != nil {
		return res, err
	}

	for {
		// Only the status column settles an order. A pending order whose payment
		// mirror already reads paid or failed still gets the write, which brings
		// the mirror back in lockstep.
		switch current := order.Status; {
		case current == desired:
			res.Order, res.Outcome = order, OutcomeReplayed
			e.record(ctx, orderID, desired, journal.DecisionReplayed, order, res.Attempts, nil)
			return res, nil
		case current.IsTerminal():
			res.Order, res.Outcome = order, OutcomeKeptExisting
			e.record(ctx, orderID, desired, journal.DecisionKeptExisting, order, res.Attempts, nil)
			return res, nil
		case current != domain.StatusPending:
			return res, fmt.Errorf("%w: order %q reads %q", ErrUnexpectedStatus, orderID, order.Status)
		}

		written, err := e.write(ctx, orderID, desired, order.Version, &res)
		if err == nil {
			res.Order, res.Outcome = written, OutcomeTransitioned
			e.record(ctx, orderID, desired, journal.DecisionTransitioned, written, res.Attempts, nil)
			return res, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return res, err
		}

		res.Conflicts++
		e.record(ctx, orderID, desired, journal.DecisionConflict, order, res.Attempts, nil)
		e.log.DebugContext(ctx, "version conflict, re-reading order",
			"order_id", orderID,
			"version", order.Version,
			"conflicts", res.Conflicts,
		)
		if res.Conflicts > e.cfg.MaxConflicts {
			return res, fmt.Errorf("%w: order %q changed %d times", ErrConflictLimit, orderID, res.Conflicts)
		}

		if order, err = e.read(ctx, orderID, &res); err != nil {
			return res, err
		}
	}
}

func (e *Engine) read(ctx context.Context, orderID string, res *Result) (domain.Order, error) {
	order, attempts, err := retry.Do(ctx, e.policy(ctx, e.cfg.Read, "read", orderID), IsTransient,
		func(ctx context.Context, _ int) (domain.Order, error) {
			res.Reads++
			order, err := e.store.ReadOrder(ctx, orderID)
			return order, storeError(ctx, err)
		})
	res.Attempts = max(res.Attempts, attempts)
	if err != nil {
		return domain.Order{}, e.classify(ctx, "read", orderID, err)
	}
	return order, nil
}

func (e *Engine) write(ctx context.Context, orderID string, desired domain.OrderStatus, expected int64, res *Result) (domain.Order, error) {
	t := domain.TransitionTo(desired)
	order, attempts, err := retry.Do(ctx, e.policy(ctx, e.cfg.Write, "write", orderID), IsTransient,
		func(ctx context.Context, _ int) (domain.Order, error) {
			res.Writes++
			order, err := e.store.ConditionalUpdate(ctx, orderID, t, expected)
			return order, storeError(ctx, err)
		})
	res.Attempts = max(res.Attempts, attempts)
	if err != nil {
		return domain.Order{}, e.classify(ctx, "write", orderID, err)
	}
	return order, nil
}

// classify tags the error as ErrAborted only when ctx itself ended; a store
// error never aborts the confirmation on its own.
func (e *Engine) classify(ctx context.Context, op, orderID string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrAborted, op, orderID, err)
	}
	return fmt.Errorf("confirmation: %s %q: %w", op, orderID, err)
}

// storeError marks a context error the store produced on its own, such as a
// per-call timeout, as unavailability while ctx is still live.
func storeError(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

func (e *Engine) policy(ctx context.Context, p retry.Policy, op, orderID string) retry.Policy {
	if p.Notify != nil {
		return p
	}
	p.Notify = func(err error, attempt int, delay time.Duration) {
		e.log.WarnContext(ctx, "order store call failed, retrying",
			"op", op,
			"order_id", orderID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}
	return p
}

func (e *Engine) record(ctx context.Context, orderID string, desired domain.OrderStatus, decision journal.Decision, order domain.Order, attempts int, cause error) {
	if e.journal == nil {
		return
	}
	entry := journal.NewEntry(ctx, orderID, string(desired), decision)
	entry.Status = string(order.Status)
	entry.Version = order.Version
	entry.Attempts = attempts
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := e.journal.Save(context.WithoutCancel(ctx), entry); err != nil {
		e.log.WarnContext(ctx, "failed to append confirmation journal",
			"order_id", orderID,
			"decision", decision,
			"error", err,
		)
	}
}
