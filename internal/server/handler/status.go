package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

// StatusHandler serves the writer and book status for the dashboard.
type StatusHandler struct {
	mode      string
	symbol    string
	feed      domain.StatusReporter
	monitor   *book.Monitor
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, symbol string, feed domain.StatusReporter, monitor *book.Monitor) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		symbol:    symbol,
		feed:      feed,
		monitor:   monitor,
		startedAt: time.Now(),
	}
}

// GetStatus responds with the mode, the writer's connection status and the
// book's freshness.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	last, bookAge, stale := h.monitor.Observe()
	var age any
	if !last.IsZero() {
		age = bookAge.Seconds()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.mode,
		"symbol":          h.symbol,
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		"feed":            h.feed.Status(),
		"book_stale":      stale,
		"stale_threshold": h.monitor.Threshold().Seconds(),
		"book_age":        age,
	})
}
