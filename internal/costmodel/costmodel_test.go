package costmodel

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newModel(p Params) *Model {
	return New(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMarketImpact(t *testing.T) {
	m := newModel(DefaultParams())
	assert.InDelta(t, 11.5, m.MarketImpact(100, 0.3), 1e-9)
	assert.InDelta(t, 13.0, m.MarketImpactOver(100, 0.3, 2), 1e-9)
	assert.Equal(t, 0.0, m.MarketImpact(0, 0.3))
}

func TestSlippageAndFee(t *testing.T) {
	m := newModel(DefaultParams())
	assert.InDelta(t, 0.0005+0.0001*100*0.3, m.Slippage(100, 0.3), 1e-12)
	assert.InDelta(t, 0.1, m.Fee(100), 1e-12)
	assert.InDelta(t, 0.2, m.FeeAt(100, 0.002), 1e-12)
	assert.InDelta(t, 0.1, m.FeeAt(100, 0), 1e-12, "zero tier falls back to default")
}

func TestMakerTakerProportion(t *testing.T) {
	m := newModel(DefaultParams())
	assert.Equal(t, 0.5, m.MakerTakerProportion(50))

	prev := m.MakerTakerProportion(-1000)
	for size := -900.0; size <= 1000; size += 100 {
		cur := m.MakerTakerProportion(size)
		assert.Greater(t, cur, prev, "monotonically increasing at %v", size)
		assert.True(t, cur > 0 && cur < 1)
		prev = cur
	}
}

func TestNonFiniteCoefficientsFallBack(t *testing.T) {
	p := DefaultParams()
	p.ImpactGamma = math.Inf(1)
	p.SlippageSlope = math.NaN()
	p.DefaultFeeTier = math.Inf(-1)
	p.MakerTakerCoefficient = math.NaN()
	m := newModel(p)

	assert.Equal(t, 0.0, m.MarketImpact(100, 0.3))
	assert.Equal(t, 0.0, m.Slippage(100, 0.3))
	assert.Equal(t, 0.0, m.Fee(100))
	assert.Equal(t, 0.5, m.MakerTakerProportion(10))
}

func TestEstimate(t *testing.T) {
	m := newModel(DefaultParams())
	e := m.Estimate(Order{Size: 100, Volatility: 0.3})

	assert.InDelta(t, 11.5, e.MarketImpact, 1e-9)
	assert.InDelta(t, 0.1, e.Fee, 1e-12)
	assert.InDelta(t, e.Slippage+e.Fee+e.MarketImpact, e.NetCost, 1e-12)
	assert.Greater(t, e.MakerTakerProportion, 0.5)
}
