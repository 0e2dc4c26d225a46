package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

const maxDepth = 500

// BookHandler serves read-only views of the order book.
type BookHandler struct {
	reader       domain.BookReader
	monitor      *book.Monitor
	defaultDepth int
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(reader domain.BookReader, monitor *book.Monitor, defaultDepth int) *BookHandler {
	return &BookHandler{reader: reader, monitor: monitor, defaultDepth: defaultDepth}
}

// GetBook returns a snapshot limited to depth levels per side.
// GET /api/book?depth=N
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, err := intQuery(r, "depth", h.defaultDepth, maxDepth)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if depth == 0 {
		depth = maxDepth
	}
	snap := h.reader.Snapshot(depth)
	snap.Stale = h.monitor.StaleAt(snap.LastUpdateAt)
	writeJSON(w, http.StatusOK, snap)
}

// GetBBO returns best ask, best bid and mid from a single snapshot. Absent
// values are null.
// GET /api/book/bbo
func (h *BookHandler) GetBBO(w http.ResponseWriter, r *http.Request) {
	snap := h.reader.Snapshot(1)
	resp := map[string]any{
		"best_ask":       nil,
		"best_bid":       nil,
		"mid_price":      nil,
		"stale":          h.monitor.StaleAt(snap.LastUpdateAt),
		"last_update_at": nil,
	}
	if snap.HasBestAsk {
		resp["best_ask"] = snap.BestAsk
	}
	if snap.HasBestBid {
		resp["best_bid"] = snap.BestBid
	}
	if snap.HasMid {
		resp["mid_price"] = snap.MidPrice
	}
	if !snap.LastUpdateAt.IsZero() {
		resp["last_update_at"] = snap.LastUpdateAt.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}
