package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker reports whether a backend dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// HealthHandler serves liveness ("ping") and readiness ("ready") checks.
type HealthHandler struct {
	backend string
	checker Checker
}

// NewHealthHandler returns a handler for backend. A nil checker makes every readiness check pass.
func NewHealthHandler(backend string, checker Checker) *HealthHandler {
	return &HealthHandler{backend: backend, checker: checker}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		h.ready(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *HealthHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.checker.Check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, MessageEnvelope{
				Error:     h.backend + " backend unavailable: " + err.Error(),
				ErrorCode: http.StatusServiceUnavailable,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: h.backend + " ready"})
}
