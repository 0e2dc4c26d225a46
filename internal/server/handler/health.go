package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	monitor *book.Monitor
	deps    map[string]Pinger
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps may be nil.
func NewHealthHandler(monitor *book.Monitor, deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{monitor: monitor, deps: deps, logger: logHandler(logger, "health")}
}

// HealthCheck reports "ok" when the book is fresh and every dependency
// answers, "degraded" otherwise. Degraded still returns 200 so a stale
// market does not get the process restarted.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy", slog.String("dep", name), slog.String("error", err.Error()))
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	stale := h.monitor.Stale()
	if stale {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"book_stale": stale,
		"checks":     checks,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
