package book

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/btree"
)

func TestParseDelta(t *testing.T) {
	tests := []struct {
		name    string
		in      domain.Delta
		price   float64
		qty     string
		wantErr bool
	}{
		{name: "plain", in: domain.Delta{Price: "50000.0", Quantity: "1.5"}, price: 50000, qty: "1.5"},
		{name: "zero qty", in: domain.Delta{Price: "1", Quantity: "0"}, price: 1, qty: "0"},
		{name: "padded", in: domain.Delta{Price: " 2.5 ", Quantity: " 3 "}, price: 2.5, qty: "3"},
		{name: "exponent", in: domain.Delta{Price: "1e2", Quantity: "2"}, price: 100, qty: "2"},
		{name: "empty", in: domain.Delta{}, wantErr: true},
		{name: "garbage price", in: domain.Delta{Price: "abc", Quantity: "1"}, wantErr: true},
		{name: "garbage qty", in: domain.Delta{Price: "1", Quantity: "x"}, wantErr: true},
		{name: "nan", in: domain.Delta{Price: "NaN", Quantity: "1"}, wantErr: true},
		{name: "inf", in: domain.Delta{Price: "1", Quantity: "Inf"}, wantErr: true},
		{name: "negative price", in: domain.Delta{Price: "-1", Quantity: "1"}, wantErr: true},
		{name: "zero price", in: domain.Delta{Price: "0", Quantity: "1"}, wantErr: true},
		{name: "negative qty", in: domain.Delta{Price: "1", Quantity: "-0.5"}, wantErr: true},
		{name: "huge", in: domain.Delta{Price: "1e400", Quantity: "1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lvl, err := parseDelta(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.price, lvl.price)
			assert.True(t, lvl.qty.Equal(decimal.RequireFromString(tt.qty)), "qty %s", lvl.qty)
		})
	}
}

func TestParseSide_ReportsEachRejectedEntry(t *testing.T) {
	in := []domain.Delta{
		{Price: "1", Quantity: "1"},
		{Price: "bad", Quantity: "1"},
		{Price: "2", Quantity: "2"},
		{Price: "3", Quantity: "-3"},
	}
	levels, errs := parseSide(domain.SideBid, in)

	require.Len(t, levels, 2)
	require.Len(t, errs, 2)

	var entryErr *EntryError
	require.True(t, errors.As(errs[0], &entryErr))
	assert.Equal(t, domain.SideBid, entryErr.Side)
	assert.Equal(t, 1, entryErr.Index)
	assert.Equal(t, "bad", entryErr.Price)
	assert.ErrorIs(t, errs[1], domain.ErrInvalidEntry)
	assert.ErrorIs(t, errs[1], errNegativeQuantity)
	assert.Contains(t, errs[1].Error(), "bids[3]")
}

func TestApplyLevels(t *testing.T) {
	tree := btree.NewMap[float64, decimal.Decimal](32)
	tree.Set(10, decimal.NewFromInt(1))

	up, del, noop := applyLevels(tree, []level{
		{price: 11, qty: decimal.NewFromInt(2)},
		{price: 10, qty: decimal.Zero},
		{price: 12, qty: decimal.Zero},
		{price: 11, qty: decimal.NewFromInt(5)},
	})

	assert.Equal(t, 2, up)
	assert.Equal(t, 1, del)
	assert.Equal(t, 1, noop)
	assert.Equal(t, 1, tree.Len())

	q, ok := tree.Get(11)
	require.True(t, ok)
	assert.True(t, q.Equal(decimal.NewFromInt(5)))
}
