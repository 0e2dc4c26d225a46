// Package book holds the authoritative in-memory Level-2 order book for one
// symbol. Writes go through ApplyUpdates only; readers take a shared lock and
// never see a half-applied batch.
package book

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// TouchPolicy decides when ApplyUpdates advances the last-update timestamp.
type TouchPolicy string

const (
	// TouchOnReceive advances the timestamp on every call, even when every
	// entry was rejected: the feed is alive even if the content was bad.
	TouchOnReceive TouchPolicy = "receive"
	// TouchOnMutation advances the timestamp only when a level changed.
	TouchOnMutation TouchPolicy = "mutation"
)

// Config configures a Book.
type Config struct {
	Symbol         string
	StaleThreshold time.Duration
	TouchPolicy    TouchPolicy
	// Now overrides the wall clock, mainly for tests.
	Now func() time.Time
}

// Book is a thread-safe price -> quantity store for both sides of the book.
type Book struct {
	symbol     string
	policy     TouchPolicy
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu           sync.RWMutex
	asks         *btree.Map[float64, decimal.Decimal]
	bids         *btree.Map[float64, decimal.Decimal]
	lastUpdateAt time.Time
}

// New creates an empty Book.
func New(cfg Config, logger *slog.Logger) *Book {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	policy := cfg.TouchPolicy
	if policy != TouchOnMutation {
		policy = TouchOnReceive
	}
	return &Book{
		symbol:     cfg.Symbol,
		policy:     policy,
		staleAfter: cfg.StaleThreshold,
		now:        now,
		logger:     logger.With(slog.String("component", "book"), slog.String("symbol", cfg.Symbol)),
		asks:       btree.NewMap[float64, decimal.Decimal](32),
		bids:       btree.NewMap[float64, decimal.Decimal](32),
	}
}

// Symbol returns the tracked symbol.
func (b *Book) Symbol() string { return b.symbol }

// ApplyUpdates applies both batches as one atomic unit. Unparseable entries
// are skipped and reported in the result; they never abort the batch.
func (b *Book) ApplyUpdates(asks, bids []domain.Delta) domain.ApplyResult {
	askLevels, askErrs := parseSide(domain.SideAsk, asks)
	bidLevels, bidErrs := parseSide(domain.SideBid, bids)

	var res domain.ApplyResult

	b.mu.Lock()
	au, ad, an := applyLevels(b.asks, askLevels)
	bu, bd, bn := applyLevels(b.bids, bidLevels)
	res.Upserts = au + bu
	res.Deletes = ad + bd
	res.Noops = an + bn
	if b.policy == TouchOnReceive || res.Mutated() {
		b.lastUpdateAt = b.now()
	}
	b.mu.Unlock()

	errs := append(askErrs, bidErrs...)
	if len(errs) > 0 {
		res.Rejected = len(errs)
		res.Err = errors.Join(errs...)
		b.logger.Warn("rejected price level entries",
			slog.Int("rejected", len(errs)),
			slog.Int("accepted", res.Accepted()),
			slog.String("first_error", errs[0].Error()),
		)
	}
	return res
}

// BestAsk returns the lowest ask price.
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, _, ok := b.asks.Min()
	return p, ok
}

// BestBid returns the highest bid price.
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, _, ok := b.bids.Max()
	return p, ok
}

// MidPrice averages best ask and best bid read under the same lock. It is
// absent when either side is empty. Crossed books are not rejected.
func (b *Book) MidPrice() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.midLocked()
}

func (b *Book) midLocked() (float64, bool) {
	ask, _, okAsk := b.asks.Min()
	bid, _, okBid := b.bids.Max()
	if !okAsk || !okBid {
		return 0, false
	}
	return (ask + bid) / 2, true
}

// LastUpdateAt returns the time of the last accepted ApplyUpdates call.
func (b *Book) LastUpdateAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateAt
}

// IsStale reports whether more than threshold has elapsed since the last
// update. A book that was never updated is stale.
func (b *Book) IsStale(threshold time.Duration) bool {
	return ageOf(b.LastUpdateAt(), b.now()) > threshold
}

// Depth returns the number of price levels on each side.
func (b *Book) Depth() (asks, bids int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.Len(), b.bids.Len()
}

// Quantity returns the resting quantity at price on the given side.
func (b *Book) Quantity(side domain.Side, price float64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tree := b.asks
	if side == domain.SideBid {
		tree = b.bids
	}
	q, ok := tree.Get(price)
	if !ok {
		return 0, false
	}
	return q.InexactFloat64(), true
}

// Snapshot copies the best depth levels of each side (all levels when depth
// <= 0) together with the BBO, all under one read lock.
func (b *Book) Snapshot(depth int) domain.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := domain.BookSnapshot{
		Symbol:       b.symbol,
		Asks:         collect(b.asks.Scan, depth, b.asks.Len()),
		Bids:         collect(b.bids.Reverse, depth, b.bids.Len()),
		AskLevels:    b.asks.Len(),
		BidLevels:    b.bids.Len(),
		LastUpdateAt: b.lastUpdateAt,
	}
	if p, _, ok := b.asks.Min(); ok {
		snap.BestAsk, snap.HasBestAsk = p, true
	}
	if p, _, ok := b.bids.Max(); ok {
		snap.BestBid, snap.HasBestBid = p, true
	}
	snap.MidPrice, snap.HasMid = b.midLocked()
	if b.staleAfter > 0 {
		snap.Stale = ageOf(b.lastUpdateAt, b.now()) > b.staleAfter
	}
	return snap
}

func collect(walk func(func(float64, decimal.Decimal) bool), depth, size int) []domain.PriceLevel {
	if depth <= 0 || depth > size {
		depth = size
	}
	out := make([]domain.PriceLevel, 0, depth)
	walk(func(price float64, qty decimal.Decimal) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, domain.PriceLevel{Price: price, Size: qty.InexactFloat64()})
		return true
	})
	return out
}

var _ domain.BookWriter = (*Book)(nil)
var _ domain.BookReader = (*Book)(nil)
