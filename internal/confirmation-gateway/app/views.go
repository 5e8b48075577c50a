// Package app keeps the confirmation views served by the gateway. A view is
// one Orchestrator addressed by a random id; it lives until it is disposed
// explicitly or sits idle longer than the registry TTL.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-confirmation/internal/confirmation"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
)

const DefaultViewTTL = 15 * time.Minute

var ErrViewNotFound = errors.New("confirmation view not found")

type RegistryConfig struct {
	TTL         time.Duration
	MaxAttempts int
	Logger      *slog.Logger
}

type Registry struct {
	base      context.Context
	confirmer confirmation.Confirmer
	ttl       time.Duration
	attempts  int
	log       *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	views map[string]*view
}

type view struct {
	orch     *confirmation.Orchestrator
	lastSeen time.Time
	release  func()
}

func (v *view) dispose() {
	v.orch.Dispose()
	v.release()
}

// NewRegistry creates views whose calls are bounded by base. Cancelling base
// aborts every in-flight confirmation.
func NewRegistry(base context.Context, c confirmation.Confirmer, cfg RegistryConfig) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultViewTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		base:      base,
		confirmer: c,
		ttl:       cfg.TTL,
		attempts:  cfg.MaxAttempts,
		log:       cfg.Logger.With("component", "view-registry"),
		now:       time.Now,
		views:     make(map[string]*view),
	}
}

// Open registers a new, not yet mounted, view. The view keeps the values of
// ctx (trace, request id) but not its cancellation: it outlives the request
// that opened it and ends with the registry base context or Dispose.
func (r *Registry) Open(ctx context.Context, orderID string, desired domain.OrderStatus) (string, *confirmation.Orchestrator) {
	parent, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.base, cancel)

	id := uuid.NewString()
	orch := confirmation.NewOrchestrator(parent, r.confirmer, orderID, desired, confirmation.OrchestratorConfig{
		MaxAttempts: r.attempts,
		Logger:      r.log,
	})

	r.mu.Lock()
	r.views[id] = &view{
		orch:     orch,
		lastSeen: r.now(),
		release:  func() { stop(); cancel() },
	}
	r.mu.Unlock()
	return id, orch
}

// Get returns the view and marks it as recently used.
func (r *Registry) Get(id string) (*confirmation.Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	if !ok {
		return nil, ErrViewNotFound
	}
	v.lastSeen = r.now()
	return v.orch, nil
}

// Dispose aborts the view's in-flight call and forgets it.
func (r *Registry) Dispose(id string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()

	if !ok {
		return ErrViewNotFound
	}
	v.dispose()
	return nil
}

// Sweep disposes views idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*view
	for id, v := range r.views {
		if v.lastSeen.Before(cutoff) {
			expired = append(expired, v)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range expired {
		v.dispose()
	}
	return len(expired)
}

// Run sweeps every half TTL until ctx ends, then disposes every view.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.InfoContext(ctx, "swept idle confirmation views", "count", n)
			}
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*view)
	r.mu.Unlock()

	for _, v := range views {
		v.dispose()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
