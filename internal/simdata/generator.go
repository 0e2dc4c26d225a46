// Package simdata generates synthetic order-book samples for offline replay.
package simdata

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/replay"
)

// Config shapes the generated walk.
type Config struct {
	Samples    int
	BasePrice  float64
	Depth      int
	Volatility float64 // max relative price move per sample
	Step       float64 // relative distance between levels
	Spread     float64 // relative spread around the walk price
	ZeroChance float64 // chance per side of zeroing one level
	Interval   time.Duration
	Start      time.Time
	Seed       int64
}

// DefaultConfig returns the standard test data shape.
func DefaultConfig() Config {
	return Config{
		Samples:    100,
		BasePrice:  50000,
		Depth:      20,
		Volatility: 0.001,
		Step:       0.0002,
		Spread:     0.0002,
		ZeroChance: 0.1,
		Interval:   100 * time.Millisecond,
		Seed:       1,
	}
}

// Generate produces cfg.Samples samples following a bounded random walk.
// The same seed always yields the same samples.
func Generate(cfg Config) []replay.Sample {
	rng := rand.New(rand.NewSource(cfg.Seed))
	start := cfg.Start
	if start.IsZero() {
		start = time.Unix(0, 0)
	}

	out := make([]replay.Sample, 0, cfg.Samples)
	price := cfg.BasePrice
	for i := 0; i < cfg.Samples; i++ {
		price += price * uniform(rng, -cfg.Volatility, cfg.Volatility)
		volFactor := 1 + uniform(rng, -0.2, 0.2)
		half := price * cfg.Spread / 2

		asks := ladder(rng, price+half, cfg.Step, cfg.Depth, volFactor, 1)
		bids := ladder(rng, price-half, cfg.Step, cfg.Depth, volFactor, -1)
		zeroOne(rng, asks, cfg.ZeroChance)
		zeroOne(rng, bids, cfg.ZeroChance)

		out = append(out, replay.Sample{
			Asks:      asks,
			Bids:      bids,
			Timestamp: start.Add(time.Duration(i) * cfg.Interval).UnixMilli(),
		})
	}
	return out
}

// ladder builds depth levels moving away from top in direction dir, with
// quantities thinning out with distance.
func ladder(rng *rand.Rand, top, step float64, depth int, volFactor float64, dir float64) []domain.Delta {
	levels := make([]domain.Delta, depth)
	for i := range levels {
		p := top + dir*float64(i)*top*step
		q := uniform(rng, 0.5, 5.0) * volFactor / (1 + float64(i)*0.1)
		levels[i] = domain.Delta{
			Price:    strconv.FormatFloat(p, 'f', -1, 64),
			Quantity: strconv.FormatFloat(q, 'f', -1, 64),
		}
	}
	return levels
}

func zeroOne(rng *rand.Rand, side []domain.Delta, chance float64) {
	if len(side) == 0 || rng.Float64() >= chance {
		return
	}
	side[rng.Intn(len(side))].Quantity = "0"
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
