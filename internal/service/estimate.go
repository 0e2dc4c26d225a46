package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

// ErrInvalidOrder is returned for orders the cost model cannot price.
var ErrInvalidOrder = errors.New("invalid order")

// Quote is a cost estimate annotated with the book state it was made on.
type Quote struct {
	costmodel.Estimate
	Symbol    string    `json:"symbol"`
	MidPrice  float64   `json:"mid_price,omitempty"`
	HasMid    bool      `json:"has_mid"`
	Quantity  float64   `json:"quantity,omitempty"`
	BookStale bool      `json:"book_stale"`
	BookAsOf  time.Time `json:"book_as_of"`
	CostBps   float64   `json:"cost_bps"`
}

// Estimator prices orders against the live book.
type Estimator struct {
	model   *costmodel.Model
	reader  domain.BookReader
	monitor *book.Monitor
	symbol  string
}

// NewEstimator creates an Estimator.
func NewEstimator(model *costmodel.Model, reader domain.BookReader, monitor *book.Monitor, symbol string) *Estimator {
	return &Estimator{model: model, reader: reader, monitor: monitor, symbol: symbol}
}

// Quote estimates o. Size is the order notional in quote currency; the
// base quantity is derived from the mid when the book has one. A stale book
// still yields a quote, flagged as such.
func (e *Estimator) Quote(o costmodel.Order) (Quote, error) {
	if !(o.Size > 0) || math.IsInf(o.Size, 0) {
		return Quote{}, fmt.Errorf("%w: size must be positive", ErrInvalidOrder)
	}
	if o.Volatility < 0 || math.IsNaN(o.Volatility) || math.IsInf(o.Volatility, 0) {
		return Quote{}, fmt.Errorf("%w: volatility must be non-negative", ErrInvalidOrder)
	}
	if o.FeeTier < 0 || math.IsNaN(o.FeeTier) {
		return Quote{}, fmt.Errorf("%w: fee tier must be non-negative", ErrInvalidOrder)
	}

	snap := e.reader.Snapshot(1)
	est := e.model.Estimate(o)
	q := Quote{
		Estimate:  est,
		Symbol:    e.symbol,
		BookStale: e.monitor.StaleAt(snap.LastUpdateAt),
		BookAsOf:  snap.LastUpdateAt,
	}
	if snap.HasMid && snap.MidPrice > 0 {
		q.MidPrice, q.HasMid = snap.MidPrice, true
		q.Quantity = o.Size / snap.MidPrice
	}
	q.CostBps = est.NetCost / o.Size * 1e4
	return q, nil
}
