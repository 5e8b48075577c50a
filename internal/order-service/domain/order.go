package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotFound means the store has no order with the requested id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVersionConflict means a conditional write matched zero rows because the
	// order changed after it was read.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrStoreUnavailable marks transient store or network failures.
	ErrStoreUnavailable = errors.New("order store unavailable")
	ErrInvalidStatus    = errors.New("invalid order status")
)

// Order is the record the confirmation flow reads and transitions.
// ProgramTitle, Email and Amount are display fields owned by checkout.
type Order struct {
	ID            string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Version       int64
	ProgramTitle  string
	Email         string
	Amount        decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus accepts the canonical lowercase names, ignoring case and
// surrounding space.
func ParseStatus(raw string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// PaymentStatus mirrors Status for the payment side of the order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	// PaymentCompleted is an older spelling of PaymentPaid still present in
	// some records.
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentStatusFor returns the payment mirror written alongside s.
func PaymentStatusFor(s OrderStatus) PaymentStatus {
	switch s {
	case StatusCompleted:
		return PaymentPaid
	case StatusFailed:
		return PaymentFailed
	default:
		return PaymentPending
	}
}

// Transition is the set of fields a conditional update may change.
type Transition struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
}

// TransitionTo builds the lockstep status/payment update for s.
func TransitionTo(s OrderStatus) Transition {
	return Transition{Status: s, PaymentStatus: PaymentStatusFor(s)}
}

// Validate rejects transitions whose target is not terminal. Nothing moves an
// order back to pending.
func (t Transition) Validate() error {
	if !t.Status.IsTerminal() {
		return fmt.Errorf("%w: transition to %q", ErrInvalidStatus, t.Status)
	}
	return nil
}

// Apply returns a copy of o with t applied and the version bumped.
func (o Order) Apply(t Transition, now time.Time) Order {
	o.Status = t.Status
	o.PaymentStatus = t.PaymentStatus
	o.Version++
	o.UpdatedAt = now
	return o
}
