package collector

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrServiceUnavailable is returned when the price API health check fails.
	ErrServiceUnavailable = errors.New("price API unavailable")
	// ErrFetchFailed is returned when the price request does not succeed.
	ErrFetchFailed = errors.New("price fetch failed")
)

// Quote is the USD market data returned for one symbol.
type Quote struct {
	Price     decimal.Decimal
	MarketCap decimal.Decimal
	Volume24h decimal.Decimal
}

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// Ping reports whether the price API is healthy.
	Ping(ctx context.Context) error
	// FetchQuotes fetches all symbols in one batched request.
	FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	Name() string
}
