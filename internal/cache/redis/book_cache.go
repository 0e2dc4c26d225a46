package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BookCache implements domain.BookCache with sorted sets and hashes.
//
// Key schema:
//
//	book:{symbol}:asks      sorted set of ask prices (score = price)
//	book:{symbol}:bids      sorted set of bid prices (score = price)
//	book:{symbol}:ask:size  hash price -> size
//	book:{symbol}:bid:size  hash price -> size
//	book:{symbol}:bbo       hash with "ask", "bid" and "mid"
//	book:{symbol}:meta      hash with "ts" (unix nanos) and "stale"
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache. Keys expire after ttl so a dead process
// does not leave a book that looks current; zero disables expiry.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: c.rdb, ttl: ttl}
}

func asksKey(symbol string) string    { return "book:" + symbol + ":asks" }
func bidsKey(symbol string) string    { return "book:" + symbol + ":bids" }
func askSizeKey(symbol string) string { return "book:" + symbol + ":ask:size" }
func bidSizeKey(symbol string) string { return "book:" + symbol + ":bid:size" }
func bboKey(symbol string) string     { return "book:" + symbol + ":bbo" }
func metaKey(symbol string) string    { return "book:" + symbol + ":meta" }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// SetSnapshot replaces the mirrored book in one MULTI/EXEC.
func (bc *BookCache) SetSnapshot(ctx context.Context, symbol string, snap domain.BookSnapshot) error {
	keys := []string{asksKey(symbol), bidsKey(symbol), askSizeKey(symbol), bidSizeKey(symbol), bboKey(symbol), metaKey(symbol)}

	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, keys...)

	writeSide(ctx, pipe, asksKey(symbol), askSizeKey(symbol), snap.Asks)
	writeSide(ctx, pipe, bidsKey(symbol), bidSizeKey(symbol), snap.Bids)

	if snap.HasBestAsk {
		pipe.HSet(ctx, bboKey(symbol), "ask", formatFloat(snap.BestAsk))
	}
	if snap.HasBestBid {
		pipe.HSet(ctx, bboKey(symbol), "bid", formatFloat(snap.BestBid))
	}
	if snap.HasMid {
		pipe.HSet(ctx, bboKey(symbol), "mid", formatFloat(snap.MidPrice))
	}
	pipe.HSet(ctx, metaKey(symbol),
		"ts", strconv.FormatInt(snap.LastUpdateAt.UnixNano(), 10),
		"stale", strconv.FormatBool(snap.Stale),
	)

	if bc.ttl > 0 {
		for _, k := range keys {
			pipe.Expire(ctx, k, bc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book snapshot %s: %w", symbol, err)
	}
	return nil
}

func writeSide(ctx context.Context, pipe redis.Pipeliner, zKey, hKey string, levels []domain.PriceLevel) {
	if len(levels) == 0 {
		return
	}
	members := make([]redis.Z, 0, len(levels))
	sizes := make([]any, 0, 2*len(levels))
	for _, lvl := range levels {
		p := formatFloat(lvl.Price)
		members = append(members, redis.Z{Score: lvl.Price, Member: p})
		sizes = append(sizes, p, formatFloat(lvl.Size))
	}
	pipe.ZAdd(ctx, zKey, members...)
	pipe.HSet(ctx, hKey, sizes...)
}

// GetSnapshot reads the mirrored book back. It returns domain.ErrNotFound
// when nothing has been mirrored for symbol.
func (bc *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	pipe := bc.rdb.Pipeline()
	asksCmd := pipe.ZRangeWithScores(ctx, asksKey(symbol), 0, -1)
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bidsKey(symbol), 0, -1)
	askSizeCmd := pipe.HGetAll(ctx, askSizeKey(symbol))
	bidSizeCmd := pipe.HGetAll(ctx, bidSizeKey(symbol))
	bboCmd := pipe.HGetAll(ctx, bboKey(symbol))
	metaCmd := pipe.HGetAll(ctx, metaKey(symbol))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book snapshot %s: %w", symbol, err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.BookSnapshot{Symbol: symbol}
	if ts, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.LastUpdateAt = time.Unix(0, ts).UTC()
	}
	snap.Stale, _ = strconv.ParseBool(meta["stale"])

	snap.Asks = readSide(asksCmd.Val(), askSizeCmd.Val())
	snap.Bids = readSide(bidsCmd.Val(), bidSizeCmd.Val())
	snap.AskLevels, snap.BidLevels = len(snap.Asks), len(snap.Bids)

	bbo := bboCmd.Val()
	if v, ok := bbo["ask"]; ok {
		snap.BestAsk, _ = strconv.ParseFloat(v, 64)
		snap.HasBestAsk = true
	}
	if v, ok := bbo["bid"]; ok {
		snap.BestBid, _ = strconv.ParseFloat(v, 64)
		snap.HasBestBid = true
	}
	if v, ok := bbo["mid"]; ok {
		snap.MidPrice, _ = strconv.ParseFloat(v, 64)
		snap.HasMid = true
	}
	return snap, nil
}

func readSide(zs []redis.Z, sizes map[string]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(sizes[member], 64)
		out = append(out, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return out
}

var _ domain.BookCache = (*BookCache)(nil)
