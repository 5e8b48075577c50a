// Package journal defines the append-only record of confirmation decisions.
//
// Each call to the transition engine appends one entry per decision it took
// (a write, a replay, a lost compare-and-swap, a failure). The journal is an
// audit trail: the order row stays the source of truth, and a journal write
// failure never fails a confirmation.
package journal

import "time"

// Decision is what the engine concluded at one step of a confirmation.
type Decision string

const (
	DecisionTransitioned Decision = "transitioned"
	DecisionReplayed     Decision = "replayed"
	DecisionKeptExisting Decision = "kept_existing"
	DecisionConflict     Decision = "conflict"
	DecisionFailed       Decision = "failed"
)

// Entry is a single row in the confirmation_journal table.
type Entry struct {
	OrderID string

	// Desired is the terminal outcome the caller asked for.
	Desired string

	Decision Decision

	// Status and Version describe the order snapshot the decision was based
	// on, or the snapshot written for DecisionTransitioned.
	Status  string
	Version int64

	// Attempts is the highest attempt count a single store call needed.
	Attempts int

	Error string

	// TraceID and SpanID link the row to the OpenTelemetry trace of the
	// confirmation.
	TraceID string
	SpanID  string

	RecordedAt time.Time
}
