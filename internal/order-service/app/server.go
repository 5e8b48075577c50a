package app

import (
	"context"
	"log/slog"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jcmexdev/order-confirmation/internal/order-service/adapters/grpc/mappers"
	"github.com/jcmexdev/order-confirmation/internal/order-service/adapters/grpc/orderstore"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors"
	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors/constants"
)

var _ orderstore.Server = (*OrderStoreServer)(nil)

// OrderStoreServer exposes a storage.Repository over gRPC. Store errors are
// returned as status codes the orderstore client maps back.
type OrderStoreServer struct {
	repo storage.Repository
	log  *slog.Logger
}

func NewOrderStoreServer(repo storage.Repository, logger *slog.Logger) *OrderStoreServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderStoreServer{repo: repo, log: logger.With("component", "order-store-server")}
}

func (s *OrderStoreServer) ReadOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := mappers.IDFromProto(req)
	order, err := s.repo.ReadOrder(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "read", id, err)
	}
	return mappers.OrderToProto(order), nil
}

func (s *OrderStoreServer) ConditionalUpdate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, t, expected, err := mappers.UpdateFromProto(req)
	if err != nil {
		return nil, s.fail(ctx, "update", id, err)
	}

	order, err := s.repo.ConditionalUpdate(ctx, id, t, expected)
	if err != nil {
		return nil, s.fail(ctx, "update", id, err)
	}

	s.log.InfoContext(ctx, "order transitioned",
		"order_id", id,
		"status", order.Status,
		"version", order.Version,
		"request_id", interceptors.GetMetadataValue(ctx, constants.HeaderXRequestId),
		"idempotency_key", interceptors.GetMetadataValue(ctx, constants.HeaderXIdempotencyKey),
	)
	return mappers.OrderToProto(order), nil
}

func (s *OrderStoreServer) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	order, err := mappers.OrderFromProto(req)
	if err != nil {
		return nil, s.fail(ctx, "create", "", err)
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, s.fail(ctx, "create", order.ID, err)
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", created.ID,
		"request_id", interceptors.GetMetadataValue(ctx, constants.HeaderXRequestId),
	)
	return mappers.OrderToProto(created), nil
}

func (s *OrderStoreServer) fail(ctx context.Context, op, id string, err error) error {
	st := orderstore.ToStatus(err)
	s.log.DebugContext(ctx, "order store call failed", "op", op, "order_id", id, "error", err)
	return st
}
