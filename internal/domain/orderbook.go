package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Side identifies one half of the order book.
type Side string

const (
	SideAsk Side = "asks"
	SideBid Side = "bids"
)

// Delta is a single [price, quantity] instruction from the feed. Both fields
// keep the literal text received so parsing policy lives in one place.
type Delta struct {
	Price    string
	Quantity string
}

// UnmarshalJSON decodes a two-element JSON array. Strings are taken as-is and
// numbers keep their literal form. Any other shape yields an empty delta
// instead of an error so one bad entry never fails the whole message.
func (d *Delta) UnmarshalJSON(b []byte) error {
	*d = Delta{}
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil || len(parts) < 2 {
		return nil
	}
	d.Price = scalarText(parts[0])
	d.Quantity = scalarText(parts[1])
	return nil
}

// MarshalJSON encodes the delta as ["price", "quantity"].
func (d Delta) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{d.Price, d.Quantity})
}

func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return strings.TrimSpace(string(raw))
	}
	return ""
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is a read-consistent copy of the top of the book.
type BookSnapshot struct {
	Symbol       string       `json:"symbol"`
	Asks         []PriceLevel `json:"asks"`
	Bids         []PriceLevel `json:"bids"`
	BestAsk      float64      `json:"best_ask"`
	BestBid      float64      `json:"best_bid"`
	MidPrice     float64      `json:"mid_price"`
	HasBestAsk   bool         `json:"has_best_ask"`
	HasBestBid   bool         `json:"has_best_bid"`
	HasMid       bool         `json:"has_mid"`
	AskLevels    int          `json:"ask_levels"`
	BidLevels    int          `json:"bid_levels"`
	LastUpdateAt time.Time    `json:"last_update_at"`
	Stale        bool         `json:"stale"`
}

// ApplyResult summarises one ApplyUpdates call.
type ApplyResult struct {
	Upserts  int
	Deletes  int
	Noops    int
	Rejected int
	// Err joins one error per rejected entry, nil when nothing was rejected.
	Err error
}

// Accepted is the number of entries that parsed, including no-op deletes.
func (r ApplyResult) Accepted() int {
	return r.Upserts + r.Deletes + r.Noops
}

// Mutated reports whether the call changed at least one price level.
func (r ApplyResult) Mutated() bool {
	return r.Upserts+r.Deletes > 0
}

// BookWriter is the single write entry point of an order book. The live feed
// client and the replay source both depend only on this.
type BookWriter interface {
	ApplyUpdates(asks, bids []Delta) ApplyResult
}

// BookReader is the read side consumed by the API and cost estimation.
type BookReader interface {
	BestAsk() (float64, bool)
	BestBid() (float64, bool)
	MidPrice() (float64, bool)
	IsStale(threshold time.Duration) bool
	LastUpdateAt() time.Time
	Snapshot(depth int) BookSnapshot
}
