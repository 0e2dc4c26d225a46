package simdata

import (
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ShapeAndDeterminism(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 50

	a := Generate(cfg)
	b := Generate(cfg)
	require.Len(t, a, 50)
	assert.Equal(t, a, b, "same seed, same samples")

	cfg.Seed = 2
	assert.NotEqual(t, a, Generate(cfg))

	for i, s := range a {
		require.Len(t, s.Asks, 20)
		require.Len(t, s.Bids, 20)
		bestAsk, _ := strconv.ParseFloat(s.Asks[0].Price, 64)
		bestBid, _ := strconv.ParseFloat(s.Bids[0].Price, 64)
		assert.Greater(t, bestAsk, bestBid, "sample %d is not crossed", i)
		for j := 1; j < len(s.Asks); j++ {
			prev, _ := strconv.ParseFloat(s.Asks[j-1].Price, 64)
			cur, _ := strconv.ParseFloat(s.Asks[j].Price, 64)
			assert.Greater(t, cur, prev)
		}
		if i > 0 {
			assert.Equal(t, cfg.Interval.Milliseconds(), s.Timestamp-a[i-1].Timestamp)
		}
	}
}

func TestGenerate_ZeroLevelsAppear(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 200
	zeros := 0
	for _, s := range Generate(cfg) {
		for _, d := range append(s.Asks, s.Bids...) {
			if d.Quantity == "0" {
				zeros++
			}
		}
	}
	// Expect roughly 10% of 400 sides.
	assert.Greater(t, zeros, 10)
	assert.Less(t, zeros, 90)
}

func TestGenerate_SamplesApplyCleanly(t *testing.T) {
	b := book.New(book.Config{Symbol: "SIM"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, s := range Generate(DefaultConfig()) {
		res := b.ApplyUpdates(s.Asks, s.Bids)
		require.NoError(t, res.Err)
	}
	_, ok := b.MidPrice()
	assert.True(t, ok)
}
