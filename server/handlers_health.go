package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/d3vgru/easy-peasy-bot/ledger"
)

type handlers struct {
	ledger    *ledger.Ledger
	connected func() bool
}

// healthz is the liveness check: the datastore answers a ping.
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz runs the checks in order and reports the first that fails.
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"datastore", func() error { return h.ledger.DB().PingContext(r.Context()) }},
		{"ledger_auth", h.ledger.AuthFailed},
		{"transport", func() error {
			if h.connected != nil && !h.connected() {
				return errors.New("chat transport not connected")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
