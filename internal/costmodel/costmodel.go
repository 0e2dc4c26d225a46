// Package costmodel estimates execution costs for a hypothetical order. All
// functions are pure; bad coefficients degrade to fallback values that are
// logged, never returned as errors.
package costmodel

import (
	"log/slog"
	"math"
)

const (
	fallbackAdditive   = 0.0
	fallbackProportion = 0.5
)

// Params are the model coefficients.
type Params struct {
	ImpactGamma           float64 `toml:"impact_gamma"`
	ImpactEta             float64 `toml:"impact_eta"`
	SlippageSlope         float64 `toml:"slippage_slope"`
	SlippageIntercept     float64 `toml:"slippage_intercept"`
	DefaultFeeTier        float64 `toml:"default_fee_tier"`
	MakerTakerCoefficient float64 `toml:"maker_taker_coefficient"`
	MakerTakerMidpoint    float64 `toml:"maker_taker_midpoint"`
}

// DefaultParams returns the calibrated production coefficients.
func DefaultParams() Params {
	return Params{
		ImpactGamma:           0.1,
		ImpactEta:             0.05,
		SlippageSlope:         0.0001,
		SlippageIntercept:     0.0005,
		DefaultFeeTier:        0.001,
		MakerTakerCoefficient: 0.01,
		MakerTakerMidpoint:    50,
	}
}

// Model evaluates the cost functions with one set of Params.
type Model struct {
	params Params
	logger *slog.Logger
}

// New creates a Model.
func New(params Params, logger *slog.Logger) *Model {
	return &Model{
		params: params,
		logger: logger.With(slog.String("component", "costmodel")),
	}
}

// Params returns the coefficients in use.
func (m *Model) Params() Params { return m.params }

// MarketImpact is the impact over a unit horizon.
func (m *Model) MarketImpact(size, volatility float64) float64 {
	return m.MarketImpactOver(size, volatility, 1.0)
}

// MarketImpactOver is gamma*size + eta*size*volatility*horizon.
func (m *Model) MarketImpactOver(size, volatility, horizon float64) float64 {
	v := m.params.ImpactGamma*size + m.params.ImpactEta*size*volatility*horizon
	return m.finite("market_impact", v, fallbackAdditive)
}

// Slippage is intercept + slope*size*volatility.
func (m *Model) Slippage(size, volatility float64) float64 {
	v := m.params.SlippageIntercept + m.params.SlippageSlope*size*volatility
	return m.finite("slippage", v, fallbackAdditive)
}

// Fee charges the default tier.
func (m *Model) Fee(size float64) float64 {
	return m.FeeAt(size, m.params.DefaultFeeTier)
}

// FeeAt is size*tier. A zero tier means the default tier.
func (m *Model) FeeAt(size, tier float64) float64 {
	if tier == 0 {
		tier = m.params.DefaultFeeTier
	}
	return m.finite("fee", size*tier, fallbackAdditive)
}

// MakerTakerProportion is a logistic curve in size centred on the midpoint.
func (m *Model) MakerTakerProportion(size float64) float64 {
	v := 1 / (1 + math.Exp(-m.params.MakerTakerCoefficient*(size-m.params.MakerTakerMidpoint)))
	return m.finite("maker_taker_proportion", v, fallbackProportion)
}

func (m *Model) finite(name string, v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		m.logger.Warn("non-finite cost estimate, using fallback",
			slog.String("estimate", name),
			slog.Float64("fallback", fallback),
		)
		return fallback
	}
	return v
}

// Order is a hypothetical order to price.
type Order struct {
	Size       float64 `json:"size"`
	Volatility float64 `json:"volatility"`
	FeeTier    float64 `json:"fee_tier"`
}

// Estimate bundles every cost figure for one order.
type Estimate struct {
	Order                Order   `json:"order"`
	Slippage             float64 `json:"slippage"`
	Fee                  float64 `json:"fee"`
	MarketImpact         float64 `json:"market_impact"`
	NetCost              float64 `json:"net_cost"`
	MakerTakerProportion float64 `json:"maker_taker_proportion"`
}

// Estimate prices o. Net cost is slippage + fee + impact.
func (m *Model) Estimate(o Order) Estimate {
	e := Estimate{
		Order:                o,
		Slippage:             m.Slippage(o.Size, o.Volatility),
		Fee:                  m.FeeAt(o.Size, o.FeeTier),
		MarketImpact:         m.MarketImpact(o.Size, o.Volatility),
		MakerTakerProportion: m.MakerTakerProportion(o.Size),
	}
	e.NetCost = e.Slippage + e.Fee + e.MarketImpact
	return e
}
