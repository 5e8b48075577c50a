package httpx

import (
	"net/http"

	"go.uber.org/atomic"
)

// Health serves liveness and readiness. Drain flips readiness off so the load
// balancer stops routing new redirects while in-flight views finish.
type Health struct {
	ready *atomic.Bool
}

func NewHealth() *Health {
	return &Health{ready: atomic.NewBool(true)}
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Health) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Health) Drain(w http.ResponseWriter, _ *http.Request) {
	h.ready.Store(false)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "draining"})
}
