// Package sqlite provides a SQLite-backed implementation of journal.Repository.
//
// WAL mode lets confirmctl read the journal while a gateway process is
// appending to it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/order-confirmation/internal/confirmation/journal"
	"github.com/jcmexdev/order-confirmation/internal/pkg/sqlitedb"
)

// ErrNotFound is returned by Latest when an order has no journal rows.
var ErrNotFound = errors.New("journal entry not found")

// The table is append-only: one row per engine decision.
const schema = `
CREATE TABLE IF NOT EXISTS confirmation_journal (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id     TEXT    NOT NULL,
    desired      TEXT    NOT NULL,
    decision     TEXT    NOT NULL,
    status       TEXT    NOT NULL DEFAULT '',
    version      INTEGER NOT NULL DEFAULT 0,
    attempts     INTEGER NOT NULL DEFAULT 0,
    error        TEXT,

    -- W3C ids of the span that made the decision.
    trace_id     TEXT    NOT NULL DEFAULT '',
    span_id      TEXT    NOT NULL DEFAULT '',

    recorded_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_confirmation_journal_order_id ON confirmation_journal(order_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_confirmation_journal_trace_id ON confirmation_journal(trace_id);
`

var _ journal.Repository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/journal.db")
func Open(path string) (*Repository, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends entry. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *journal.Entry) error {
	const q = `
		INSERT INTO confirmation_journal
			(order_id, desired, decision, status, version, attempts, error, trace_id, span_id, recorded_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.OrderID,
		entry.Desired,
		string(entry.Decision),
		entry.Status,
		entry.Version,
		entry.Attempts,
		nullableString(entry.Error),
		entry.TraceID,
		entry.SpanID,
		sqlitedb.FormatTime(entry.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save journal entry for %q: %w", entry.OrderID, err)
	}
	return nil
}

// List returns every entry for orderID, oldest first.
func (r *Repository) List(ctx context.Context, orderID string) ([]journal.Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE  order_id = ?
		ORDER  BY recorded_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list journal for %q: %w", orderID, err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list journal for %q: %w", orderID, err)
	}
	return out, nil
}

// Latest returns the most recent entry for orderID.
func (r *Repository) Latest(ctx context.Context, orderID string) (*journal.Entry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`
		WHERE  order_id = ?
		ORDER  BY recorded_at DESC, id DESC
		LIMIT  1`, orderID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: latest for %q: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

const selectColumns = `
		SELECT order_id, desired, decision, status, version, attempts, COALESCE(error, ''),
		       trace_id, span_id, recorded_at
		FROM   confirmation_journal`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*journal.Entry, error) {
	var (
		entry      journal.Entry
		decision   string
		recordedAt string
	)
	err := row.Scan(
		&entry.OrderID,
		&entry.Desired,
		&decision,
		&entry.Status,
		&entry.Version,
		&entry.Attempts,
		&entry.Error,
		&entry.TraceID,
		&entry.SpanID,
		&recordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan journal entry: %w", err)
	}
	entry.Decision = journal.Decision(decision)
	if entry.RecordedAt, err = sqlitedb.ParseTime(recordedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

// nullableString stores NULL instead of empty TEXT for rows without an error.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
