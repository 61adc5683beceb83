package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is the latest known market snapshot for one symbol.
type PriceRecord struct {
	Symbol    string
	Price     decimal.Decimal // USD
	MarketCap decimal.Decimal // USD
	Volume24h decimal.Decimal // USD
	UpdatedAt time.Time
}

// ChangeEvent pairs the previous and new image of a PriceRecord after one store mutation.
type ChangeEvent struct {
	Seq       int64
	Symbol    string
	Old       *PriceRecord // nil on first observation
	New       PriceRecord
	CreatedAt time.Time
}

// HasPrevious reports whether the event carries a comparable prior state.
func (e ChangeEvent) HasPrevious() bool { return e.Old != nil }
