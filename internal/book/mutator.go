package book

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// EntryError describes a single delta that was rejected during a batch.
type EntryError struct {
	Side     domain.Side
	Index    int
	Price    string
	Quantity string
	Reason   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("book: %s[%d] (%q, %q): %v", e.Side, e.Index, e.Price, e.Quantity, e.Reason)
}

// Unwrap lets callers match rejected entries with errors.Is(err, domain.ErrInvalidEntry).
func (e *EntryError) Unwrap() []error {
	return []error{domain.ErrInvalidEntry, e.Reason}
}

var (
	errPriceNotPositive = errors.New("price must be positive")
	errNegativeQuantity = errors.New("quantity must not be negative")
	errOutOfRange       = errors.New("value out of float64 range")
)

// level is a parsed delta. A zero quantity means delete.
type level struct {
	price float64
	qty   decimal.Decimal
}

// parseDelta validates one [price, quantity] pair. Prices must be strictly
// positive and quantities non-negative; both must be finite decimals.
func parseDelta(d domain.Delta) (level, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(d.Price))
	if err != nil {
		return level{}, fmt.Errorf("price: %w", err)
	}
	if !price.IsPositive() {
		return level{}, errPriceNotPositive
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(d.Quantity))
	if err != nil {
		return level{}, fmt.Errorf("quantity: %w", err)
	}
	if qty.IsNegative() {
		return level{}, errNegativeQuantity
	}

	p := price.InexactFloat64()
	if math.IsInf(p, 0) || math.IsInf(qty.InexactFloat64(), 0) {
		return level{}, errOutOfRange
	}
	return level{price: p, qty: qty}, nil
}

// parseSide parses a batch in order, keeping the accepted levels and one
// EntryError per rejected delta.
func parseSide(side domain.Side, deltas []domain.Delta) ([]level, []error) {
	levels := make([]level, 0, len(deltas))
	var errs []error
	for i, d := range deltas {
		lvl, err := parseDelta(d)
		if err != nil {
			errs = append(errs, &EntryError{
				Side:     side,
				Index:    i,
				Price:    d.Price,
				Quantity: d.Quantity,
				Reason:   err,
			})
			continue
		}
		levels = append(levels, lvl)
	}
	return levels, errs
}

// applyLevels mutates one side in the given order, so a later entry for the
// same price overwrites an earlier one.
func applyLevels(tree *btree.Map[float64, decimal.Decimal], levels []level) (upserts, deletes, noops int) {
	for _, lvl := range levels {
		if lvl.qty.IsZero() {
			if _, ok := tree.Delete(lvl.price); ok {
				deletes++
			} else {
				noops++
			}
			continue
		}
		tree.Set(lvl.price, lvl.qty)
		upserts++
	}
	return upserts, deletes, noops
}
