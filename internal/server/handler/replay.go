package handler

import (
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// ReplayControls is the control surface of an offline replay source.
type ReplayControls interface {
	Pause()
	Resume()
	Restart()
	SetSpeed(speed float64) error
	Status() domain.FeedStatus
}

// ReplayHandler exposes replay playback controls.
type ReplayHandler struct {
	source ReplayControls
}

// NewReplayHandler creates a ReplayHandler.
func NewReplayHandler(source ReplayControls) *ReplayHandler {
	return &ReplayHandler{source: source}
}

// Pause halts playback.
// POST /api/replay/pause
func (h *ReplayHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.source.Pause()
	writeJSON(w, http.StatusOK, h.source.Status())
}

// Resume continues playback.
// POST /api/replay/resume
func (h *ReplayHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.source.Resume()
	writeJSON(w, http.StatusOK, h.source.Status())
}

// Restart rewinds to the first sample.
// POST /api/replay/restart
func (h *ReplayHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.source.Restart()
	writeJSON(w, http.StatusOK, h.source.Status())
}

// SetSpeed changes the samples-per-second rate.
// PUT /api/replay/speed
func (h *ReplayHandler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed *float64 `json:"speed"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Speed == nil {
		writeError(w, http.StatusBadRequest, "speed is required")
		return
	}
	if err := h.source.SetSpeed(*body.Speed); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.source.Status())
}
