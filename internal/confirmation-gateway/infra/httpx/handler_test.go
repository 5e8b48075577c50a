package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/jcmexdev/order-confirmation/internal/confirmation"
	"github.com/jcmexdev/order-confirmation/internal/confirmation-gateway/app"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/memory"
	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
)

// failingStore fails the first n reads with a transient error.
type failingStore struct {
	storage.OrderStore
	failReads *atomic.Int32
}

func (s failingStore) ReadOrder(ctx context.Context, id string) (domain.Order, error) {
	if s.failReads.Dec() >= 0 {
		return domain.Order{}, fmt.Errorf("failing: read %q: %w", id, domain.ErrStoreUnavailable)
	}
	return s.OrderStore.ReadOrder(ctx, id)
}

// blockingStore parks reads until the caller's context ends.
type blockingStore struct {
	storage.OrderStore
	entered chan struct{}
	left    chan struct{}
}

func (s blockingStore) ReadOrder(ctx context.Context, _ string) (domain.Order, error) {
	close(s.entered)
	defer close(s.left)
	<-ctx.Done()
	return domain.Order{}, ctx.Err()
}

type testServer struct {
	router   http.Handler
	registry *app.Registry
	health   *Health
}

func newTestServer(t *testing.T, store storage.OrderStore) testServer {
	t.Helper()
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	engine := confirmation.NewEngine(store, confirmation.Config{Read: policy, Write: policy})
	registry := app.NewRegistry(context.Background(), engine, app.RegistryConfig{TTL: time.Minute, MaxAttempts: 2})
	t.Cleanup(registry.Close)
	health := NewHealth()
	return testServer{
		router:   NewRouter(NewHandler(registry, engine, nil), health),
		registry: registry,
		health:   health,
	}
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	_, err := store.CreateOrder(context.Background(), domain.Order{
		ID:           "ord-001",
		ProgramTitle: "Go Concurrency",
		Amount:       decimal.RequireFromString("49.9"),
	})
	require.NoError(t, err)
	return store
}

func (s testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// mount opens a view and checks the accepted response.
func (s testServer) mount(t *testing.T, target string) ViewResponse {
	t.Helper()
	rec := s.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	view := decode[ViewResponse](t, rec)
	require.Equal(t, "/views/"+view.ID, rec.Header().Get("Location"))
	return view
}

// settled polls the view until it leaves the loading state.
func (s testServer) settled(t *testing.T, id string) ViewResponse {
	t.Helper()
	var view ViewResponse
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/views/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		view = decode[ViewResponse](t, rec)
		return view.State != "loading"
	}, 5*time.Second, 5*time.Millisecond)
	return view
}

func TestPaymentSuccess_MountsAndPolls(t *testing.T) {
	srv := newTestServer(t, seededStore(t))

	accepted := srv.mount(t, "/payment/success?order_id=ord-001")
	assert.NotEqual(t, "error", accepted.State)

	view := srv.settled(t, accepted.ID)
	assert.Equal(t, accepted.ID, view.ID)
	assert.Equal(t, "success", view.State)
	assert.Equal(t, "transitioned", view.Outcome)
	assert.False(t, view.Replayed)
	require.NotNil(t, view.Order)
	assert.Equal(t, "completed", view.Order.Status)
	assert.Equal(t, "paid", view.Order.PaymentStatus)
	assert.Equal(t, "49.90", view.Order.Amount)
	assert.Equal(t, int64(1), view.Order.Version)

	rec := srv.do(t, http.MethodGet, "/views/"+view.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	polled := decode[ViewResponse](t, rec)
	assert.Equal(t, view.Order, polled.Order)
}

func TestPaymentFailure_KeepsCompletedOrder(t *testing.T) {
	srv := newTestServer(t, seededStore(t))
	srv.settled(t, srv.mount(t, "/payment/success?order_id=ord-001").ID)

	view := srv.settled(t, srv.mount(t, "/payment/failure?order_id=ord-001").ID)

	assert.Equal(t, "kept_existing", view.Outcome)
	assert.True(t, view.Replayed)
	assert.Equal(t, "completed", view.Order.Status)
	assert.Equal(t, int64(1), view.Order.Version)
}

func TestPaymentSuccess_MissingOrderID(t *testing.T) {
	srv := newTestServer(t, seededStore(t))

	view := srv.mount(t, "/payment/success")

	assert.Equal(t, "error", view.State)
	require.NotNil(t, view.Error)
	assert.Equal(t, "missing_order_id", view.Error.Code)
	assert.Equal(t, "fatal", view.Error.Kind)
	assert.False(t, view.CanRetry)

	rec := srv.do(t, http.MethodPost, "/views/"+view.ID+"/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_retryable", decode[ErrorResponse](t, rec).Error)
}

func TestRetryView_AfterExhaustion(t *testing.T) {
	store := failingStore{OrderStore: seededStore(t), failReads: atomic.NewInt32(2)}
	srv := newTestServer(t, store)

	view := srv.settled(t, srv.mount(t, "/payment/success?order_id=ord-001").ID)
	assert.Equal(t, "error", view.State)
	require.NotNil(t, view.Error)
	assert.Equal(t, "retries_exhausted", view.Error.Code)
	assert.Equal(t, "retryable", view.Error.Kind)
	assert.True(t, view.CanRetry)
	assert.Equal(t, AttemptsResponse{Automatic: 2, Manual: 0, Max: 2, Exhausted: true}, view.Attempts)

	rec := srv.do(t, http.MethodPost, "/views/"+view.ID+"/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	retried := decode[ViewResponse](t, rec)
	assert.Equal(t, "success", retried.State)
	assert.Equal(t, 1, retried.Attempts.Manual)

	rec = srv.do(t, http.MethodPost, "/views/"+view.ID+"/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)
}

func TestDisposeView(t *testing.T) {
	srv := newTestServer(t, seededStore(t))
	view := srv.settled(t, srv.mount(t, "/payment/success?order_id=ord-001").ID)

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/views/"+view.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/views/"+view.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, "/views/"+view.ID, "").Code)
}

func TestPaymentSuccess_RespondsBeforeTheStoreAnswers(t *testing.T) {
	entered, left := make(chan struct{}), make(chan struct{})
	srv := newTestServer(t, blockingStore{OrderStore: memory.NewStore(), entered: entered, left: left})

	view := srv.mount(t, "/payment/success?order_id=ord-001")
	<-entered

	rec := srv.do(t, http.MethodGet, "/views/"+view.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loading", decode[ViewResponse](t, rec).State)
	assert.Equal(t, 1, srv.registry.Len())

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/views/"+view.ID, "").Code)
	select {
	case <-left:
	case <-time.After(5 * time.Second):
		t.Fatal("store read was not cancelled after the view was deleted")
	}
	assert.Zero(t, srv.registry.Len())
}

func TestPaymentWebhook(t *testing.T) {
	srv := newTestServer(t, seededStore(t))

	rec := srv.do(t, http.MethodPost, "/webhooks/payment", `{"order_id":"ord-001","outcome":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[WebhookResponse](t, rec)
	assert.Equal(t, "transitioned", first.Outcome)
	assert.False(t, first.Replayed)

	rec = srv.do(t, http.MethodPost, "/webhooks/payment", `{"order_id":"ord-001","outcome":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[WebhookResponse](t, rec)
	assert.Equal(t, "replayed", second.Outcome)
	assert.Equal(t, first.Order, second.Order)
}

func TestPaymentWebhook_Errors(t *testing.T) {
	srv := newTestServer(t, seededStore(t))

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "pending outcome", body: `{"order_id":"ord-001","outcome":"pending"}`, status: http.StatusBadRequest, code: "invalid_outcome"},
		{name: "unknown outcome", body: `{"order_id":"ord-001","outcome":"refunded"}`, status: http.StatusBadRequest, code: "invalid_outcome"},
		{name: "missing order", body: `{"outcome":"failed"}`, status: http.StatusBadRequest, code: "missing_order_id"},
		{name: "unknown order", body: `{"order_id":"ord-404","outcome":"failed"}`, status: http.StatusNotFound, code: "order_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/webhooks/payment", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, seededStore(t))

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/livez", "").Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusAccepted, srv.do(t, http.MethodPost, "/drain", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, srv.do(t, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/livez", "").Code)

	srv.health.SetReady(true)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/readyz", "").Code)
}
