package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
)

func TestStore_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	created, err := s.CreateOrder(ctx, domain.Order{
		ID:           "ord-001",
		ProgramTitle: "Go for Backend Engineers",
		Amount:       decimal.RequireFromString("149.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, domain.PaymentPending, created.PaymentStatus)
	assert.Equal(t, int64(0), created.Version)

	got, err := s.ReadOrder(ctx, "ord-001")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.CreateOrder(ctx, domain.Order{ID: "ord-001"})
	assert.Error(t, err)
}

func TestStore_ReadMissing(t *testing.T) {
	_, err := NewStore().ReadOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.CreateOrder(ctx, domain.Order{ID: "ord-001"})
	require.NoError(t, err)

	updated, err := s.ConditionalUpdate(ctx, "ord-001", domain.TransitionTo(domain.StatusCompleted), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, updated.Status)
	assert.Equal(t, domain.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, int64(1), updated.Version)

	_, err = s.ConditionalUpdate(ctx, "ord-001", domain.TransitionTo(domain.StatusFailed), 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = s.ConditionalUpdate(ctx, "missing", domain.TransitionTo(domain.StatusFailed), 0)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	got, err := s.ReadOrder(ctx, "ord-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestStore_ConditionalUpdateNeverLeavesTerminalStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.CreateOrder(ctx, domain.Order{ID: "ord-002", Status: domain.StatusCompleted})
	require.NoError(t, err)

	// The version matches, but a settled order is never overwritten.
	_, err = s.ConditionalUpdate(ctx, "ord-002", domain.TransitionTo(domain.StatusFailed), 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = s.ConditionalUpdate(ctx, "ord-002", domain.TransitionTo(domain.StatusPending), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	got, err := s.ReadOrder(ctx, "ord-002")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, int64(0), got.Version)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().ReadOrder(ctx, "ord-001")
	assert.ErrorIs(t, err, context.Canceled)
}
