package orderstore

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jcmexdev/order-confirmation/internal/order-service/adapters/grpc/mappers"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors"
)

var _ storage.Repository = (*Client)(nil)

// Client talks to a remote OrderStore and maps gRPC status codes back to the
// domain store errors.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an instrumented plaintext connection to addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(interceptors.PropagateClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("orderstore: dial %s: %w", addr, err)
	}
	return conn, nil
}

func (c *Client) ReadOrder(ctx context.Context, id string) (domain.Order, error) {
	return c.invoke(ctx, ReadOrderMethod, "read", id, mappers.IDToProto(id))
}

func (c *Client) ConditionalUpdate(ctx context.Context, id string, t domain.Transition, expectedVersion int64) (domain.Order, error) {
	return c.invoke(ctx, ConditionalUpdateMethod, "update", id, mappers.UpdateToProto(id, t, expectedVersion))
}

func (c *Client) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	return c.invoke(ctx, CreateOrderMethod, "create", order.ID, mappers.OrderToProto(order))
}

func (c *Client) invoke(ctx context.Context, method, op, id string, req *structpb.Struct) (domain.Order, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out); err != nil {
		return domain.Order{}, fromStatus(ctx, op, id, err)
	}
	order, err := mappers.OrderFromProto(out)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orderstore: %s %q: %w", op, id, err)
	}
	return order, nil
}

// fromStatus translates a gRPC error into the store taxonomy. Anything that
// is not clearly permanent is treated as transient.
func fromStatus(ctx context.Context, op, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("orderstore: %s %q: %w: %w", op, id, domain.ErrStoreUnavailable, err)
	}

	var target error
	switch st.Code() {
	case codes.NotFound:
		target = domain.ErrOrderNotFound
	case codes.Aborted:
		target = domain.ErrVersionConflict
	case codes.InvalidArgument:
		target = domain.ErrInvalidStatus
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		target = domain.ErrStoreUnavailable
	default:
		return fmt.Errorf("orderstore: %s %q: %s", op, id, st.Message())
	}
	return fmt.Errorf("orderstore: %s %q: %w: %s", op, id, target, st.Message())
}

// ToStatus is the server-side inverse of fromStatus.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
