package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// BBOChannel is the pub/sub channel carrying top-of-book updates.
func BBOChannel(symbol string) string { return "book:" + symbol + ":bbo" }

// Mirror copies snapshots into the shared cache and announces the top of
// the book on the signal bus.
type Mirror struct {
	cache  domain.BookCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewMirror creates a Mirror. bus may be nil.
func NewMirror(cache domain.BookCache, bus domain.SignalBus, logger *slog.Logger) *Mirror {
	return &Mirror{cache: cache, bus: bus, logger: logger}
}

func (m *Mirror) Name() string { return "redis" }

// Publish stores the snapshot and publishes a bbo event. A failed publish
// is logged; only a failed store is returned.
func (m *Mirror) Publish(ctx context.Context, snap domain.BookSnapshot) error {
	if err := m.cache.SetSnapshot(ctx, snap.Symbol, snap); err != nil {
		return fmt.Errorf("mirror: set snapshot for %q: %w", snap.Symbol, err)
	}
	if m.bus == nil {
		return nil
	}

	evt, _ := json.Marshal(map[string]any{
		"event":          "bbo",
		"symbol":         snap.Symbol,
		"best_bid":       snap.BestBid,
		"best_ask":       snap.BestAsk,
		"mid_price":      snap.MidPrice,
		"has_mid":        snap.HasMid,
		"stale":          snap.Stale,
		"last_update_at": snap.LastUpdateAt.Format(time.RFC3339Nano),
	})
	if err := m.bus.Publish(ctx, BBOChannel(snap.Symbol), evt); err != nil {
		m.logger.WarnContext(ctx, "mirror: publish bbo failed",
			slog.String("symbol", snap.Symbol),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
