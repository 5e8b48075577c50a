package confirmation

import (
	"context"
)

// Guard owns the cancellation token for one confirmation view. Every store
// call issued for the view runs under Context(); Dispose aborts them.
type Guard struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewGuard(parent context.Context) *Guard {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Guard{ctx: ctx, cancel: cancel}
}

func (g *Guard) Context() context.Context {
	return g.ctx
}

// Dispose signals the token with ErrDisposed. Safe to call more than once.
func (g *Guard) Dispose() {
	g.cancel(ErrDisposed)
}

// Disposed reports whether the token was signalled, either by Dispose or by
// the parent context ending.
func (g *Guard) Disposed() bool {
	return g.ctx.Err() != nil
}

// Cause returns why the token was signalled, or nil.
func (g *Guard) Cause() error {
	return context.Cause(g.ctx)
}
