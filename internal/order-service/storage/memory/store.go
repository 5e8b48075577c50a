// Package memory provides an in-process storage.Repository for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
)

var _ storage.Repository = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		orders: make(map[string]domain.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ReadOrder(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: read %q: %w", id, domain.ErrOrderNotFound)
	}
	return order, nil
}

// ConditionalUpdate applies t only when the stored order is still pending at
// expectedVersion. A settled order reports a version conflict.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, t domain.Transition, expectedVersion int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if err := t.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("memory: update %q: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: update %q: %w", id, domain.ErrOrderNotFound)
	}
	if order.Version != expectedVersion {
		return domain.Order{}, fmt.Errorf("memory: update %q at version %d (current %d): %w",
			id, expectedVersion, order.Version, domain.ErrVersionConflict)
	}
	if order.Status != domain.StatusPending {
		return domain.Order{}, fmt.Errorf("memory: update %q: order already %s: %w",
			id, order.Status, domain.ErrVersionConflict)
	}

	updated := order.Apply(t, s.now())
	s.orders[id] = updated
	return updated, nil
}

// CreateOrder stores order, assigning an id and timestamps when missing.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := s.orders[order.ID]; exists {
		return domain.Order{}, fmt.Errorf("memory: order %q already exists", order.ID)
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

	s.orders[order.ID] = order
	return order, nil
}
