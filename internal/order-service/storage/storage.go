// Package storage defines the Order Store contract consumed by the
// confirmation core and implemented by the memory, sqlite and gRPC adapters.
package storage

import (
	"context"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
)

// OrderStore performs point reads and version-guarded writes on orders.
//
// Implementations report a missing order with domain.ErrOrderNotFound, a
// lost compare-and-swap with domain.ErrVersionConflict and infrastructure
// failures with domain.ErrStoreUnavailable. A cancelled ctx surfaces as the
// context error.
type OrderStore interface {
	ReadOrder(ctx context.Context, id string) (domain.Order, error)
	ConditionalUpdate(ctx context.Context, id string, t domain.Transition, expectedVersion int64) (domain.Order, error)
}

// Repository is an OrderStore that also accepts new orders. Creation belongs
// to checkout; it is exposed here for seeding and tests.
type Repository interface {
	OrderStore
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
}
