// Package sqlite provides a SQLite-backed implementation of storage.Repository.
//
// The version column is the compare-and-swap key: every successful write
// increments it, and ConditionalUpdate only matches the row when the caller's
// expected version is still current.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/pkg/sqlitedb"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id              TEXT    PRIMARY KEY,
    status          TEXT    NOT NULL DEFAULT 'pending',
    payment_status  TEXT    NOT NULL DEFAULT 'pending',

    -- Monotonic compare-and-swap key.
    version         INTEGER NOT NULL DEFAULT 0,

    -- Display fields written by checkout, never touched by confirmation.
    program_title   TEXT    NOT NULL DEFAULT '',
    email           TEXT    NOT NULL DEFAULT '',
    amount          TEXT    NOT NULL DEFAULT '0',

    created_at      TEXT    NOT NULL,
    updated_at      TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
`

var _ storage.Repository = (*Store)(nil)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and applies the schema.
//
//	store, err := sqlite.Open("./data/orders.db")
func Open(path string) (*Store, error) {
	db, err := sqlitedb.Open(path, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ReadOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("sqlite: read %q: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, unavailable(ctx, "read", id, err)
	}
	return order, nil
}

// ConditionalUpdate runs the version-guarded UPDATE and the follow-up read in
// one transaction so the returned snapshot is the row this call wrote. Only a
// pending row matches; a settled row reports a version conflict.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, t domain.Transition, expectedVersion int64) (domain.Order, error) {
	if err := t.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: update %q: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, unavailable(ctx, "begin update", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		UPDATE orders
		SET    status = ?, payment_status = ?, version = version + 1, updated_at = ?
		WHERE  id = ? AND version = ? AND status = ?`

	res, err := tx.ExecContext(ctx, q,
		string(t.Status),
		string(t.PaymentStatus),
		sqlitedb.FormatTime(s.now()),
		id,
		expectedVersion,
		string(domain.StatusPending),
	)
	if err != nil {
		return domain.Order{}, unavailable(ctx, "update", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, unavailable(ctx, "update", id, err)
	}

	current, err := scanOrder(tx.QueryRowContext(ctx, selectOrder, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("sqlite: update %q: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, unavailable(ctx, "reread", id, err)
	}
	if affected == 0 {
		return domain.Order{}, fmt.Errorf("sqlite: update %q at version %d (current %d, %s): %w",
			id, expectedVersion, current.Version, current.Status, domain.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, unavailable(ctx, "commit update", id, err)
	}
	return current, nil
}

// CreateOrder inserts order as written by checkout, assigning an id and
// timestamps when missing.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = domain.StatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.PaymentStatusFor(order.Status)
	}
	now := s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	const q = `
		INSERT INTO orders
			(id, status, payment_status, version, program_title, email, amount, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		order.ID,
		string(order.Status),
		string(order.PaymentStatus),
		order.Version,
		order.ProgramTitle,
		order.Email,
		order.Amount.String(),
		sqlitedb.FormatTime(order.CreatedAt),
		sqlitedb.FormatTime(order.UpdatedAt),
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: create order %q: %w", order.ID, err)
	}
	return order, nil
}

// ListByStatus returns up to limit orders in the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE status = ? ORDER BY created_at ASC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, unavailable(ctx, "list", string(status), err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable(ctx, "list", string(status), err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(ctx, "list", string(status), err)
	}
	return out, nil
}

const selectColumns = `
	SELECT id, status, payment_status, version, program_title, email, amount, created_at, updated_at
	FROM   orders`

const selectOrder = selectColumns + ` WHERE id = ?`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o                    domain.Order
		status, payment      string
		amount               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&o.ID, &status, &payment, &o.Version, &o.ProgramTitle, &o.Email, &amount, &createdAt, &updatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(payment)

	var err error
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: parse amount %q: %w", amount, err)
	}
	if o.CreatedAt, err = sqlitedb.ParseTime(createdAt); err != nil {
		return domain.Order{}, err
	}
	if o.UpdatedAt, err = sqlitedb.ParseTime(updatedAt); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// unavailable tags driver failures as transient unless the caller's context
// ended, in which case the context error is returned as-is.
func unavailable(ctx context.Context, op, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("sqlite: %s %q: %w: %w", op, id, domain.ErrStoreUnavailable, err)
}
