package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/service"
)

// EstimateHandler prices hypothetical orders.
type EstimateHandler struct {
	estimator *service.Estimator
	defaults  costmodel.Order
	logger    *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler. Fields absent from a
// request take their value from defaults.
func NewEstimateHandler(estimator *service.Estimator, defaults costmodel.Order, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{estimator: estimator, defaults: defaults, logger: logHandler(logger, "estimate")}
}

// Estimate prices an order given as a JSON body.
// POST /api/estimate
func (h *EstimateHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	o := h.defaults
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respond(w, r, o)
}

// EstimateQuery prices an order given as query parameters.
// GET /api/estimate?size=&volatility=&fee_tier=
func (h *EstimateHandler) EstimateQuery(w http.ResponseWriter, r *http.Request) {
	var o costmodel.Order
	var err error
	if o.Size, err = floatQuery(r, "size", h.defaults.Size); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if o.Volatility, err = floatQuery(r, "volatility", h.defaults.Volatility); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if o.FeeTier, err = floatQuery(r, "fee_tier", h.defaults.FeeTier); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respond(w, r, o)
}

func (h *EstimateHandler) respond(w http.ResponseWriter, r *http.Request, o costmodel.Order) {
	q, err := h.estimator.Quote(o)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "estimate failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "estimate failed")
		return
	}
	writeJSON(w, http.StatusOK, q)
}
