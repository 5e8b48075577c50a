package confirmation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/pkg/cache"
)

const DefaultCacheTTL = 10 * time.Minute

var _ storage.OrderStore = (*CachedStore)(nil)

// CachedStore serves reads of settled orders from the cache. Only snapshots
// whose Status is terminal are cached, so a cached value can never be stale.
// Cache failures are logged and the call falls through to the store.
type CachedStore struct {
	next  storage.OrderStore
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedStore(next storage.OrderStore, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, cache: c, ttl: ttl, log: logger.With("component", "order-cache")}
}

func (s *CachedStore) ReadOrder(ctx context.Context, id string) (domain.Order, error) {
	key := s.cache.GenerateKey("order", id)

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "order cache read failed", "order_id", id, "error", err)
	}
	if raw != "" {
		var dto snapshotDTO
		if err := json.Unmarshal([]byte(raw), &dto); err == nil {
			return dto.toDomain(), nil
		}
		s.log.WarnContext(ctx, "discarding malformed cached order", "order_id", id)
	}

	order, err := s.next.ReadOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	s.remember(ctx, order)
	return order, nil
}

func (s *CachedStore) ConditionalUpdate(ctx context.Context, id string, t domain.Transition, expectedVersion int64) (domain.Order, error) {
	order, err := s.next.ConditionalUpdate(ctx, id, t, expectedVersion)
	if err != nil {
		return domain.Order{}, err
	}
	s.remember(ctx, order)
	return order, nil
}

func (s *CachedStore) remember(ctx context.Context, order domain.Order) {
	if !order.Status.IsTerminal() {
		return
	}
	payload, err := json.Marshal(fromDomain(order))
	if err != nil {
		s.log.WarnContext(ctx, "encode cached order", "order_id", order.ID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, s.cache.GenerateKey("order", order.ID), string(payload), s.ttl); err != nil {
		s.log.WarnContext(ctx, "order cache write failed", "order_id", order.ID, "error", err)
	}
}

type snapshotDTO struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Version       int64           `json:"version"`
	ProgramTitle  string          `json:"program_title,omitempty"`
	Email         string          `json:"email,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func fromDomain(o domain.Order) snapshotDTO {
	return snapshotDTO{
		ID:            o.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Version:       o.Version,
		ProgramTitle:  o.ProgramTitle,
		Email:         o.Email,
		Amount:        o.Amount,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (d snapshotDTO) toDomain() domain.Order {
	return domain.Order{
		ID:            d.ID,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		Version:       d.Version,
		ProgramTitle:  d.ProgramTitle,
		Email:         d.Email,
		Amount:        d.Amount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
