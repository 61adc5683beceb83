package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoinGeckoFetcher implements Fetcher using the CoinGecko public REST API.
type CoinGeckoFetcher struct {
	BaseURL   string
	APIKey    string
	Precision int
	Client    *http.Client
}

// NewCoinGeckoFetcher creates a new fetcher with optional proxy support.
func NewCoinGeckoFetcher(baseURL, apiKey string, precision int, proxyURL string) *CoinGeckoFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &CoinGeckoFetcher{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		Precision: precision,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *CoinGeckoFetcher) Name() string { return "coingecko" }

func (f *CoinGeckoFetcher) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.APIKey)
	}
	return req, nil
}

// Ping calls /ping and fails with ErrServiceUnavailable unless it answers 200.
func (f *CoinGeckoFetcher) Ping(ctx context.Context) error {
	req, err := f.newRequest(ctx, f.BaseURL+"/ping")
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// FetchQuotes requests /simple/price for every symbol at once.
func (f *CoinGeckoFetcher) FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(symbols, ","))
	q.Set("vs_currencies", "usd")
	q.Set("precision", strconv.Itoa(f.Precision))
	q.Set("include_last_updated_at", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_24hr_change", "true")
	endpoint := f.BaseURL + "/simple/price?" + q.Encode()

	req, err := f.newRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrFetchFailed, resp.StatusCode, string(body))
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetchFailed, err)
	}

	quotes := make(map[string]Quote, len(raw))
	for symbol, fields := range raw {
		quote, err := parseQuote(fields)
		if err != nil {
			log.Printf("[WARN] skip %s: %v", symbol, err)
			continue
		}
		quotes[symbol] = quote
	}
	return quotes, nil
}

func parseQuote(fields map[string]json.RawMessage) (Quote, error) {
	price, err := decimalField(fields, "usd")
	if err != nil {
		return Quote{}, err
	}
	mcap, err := decimalField(fields, "usd_market_cap")
	if err != nil {
		return Quote{}, err
	}
	vol, err := decimalField(fields, "usd_24h_vol")
	if err != nil {
		return Quote{}, err
	}
	return Quote{Price: price, MarketCap: mcap, Volume24h: vol}, nil
}

// decimalField parses the raw JSON number text so no float64 conversion happens.
func decimalField(fields map[string]json.RawMessage, key string) (decimal.Decimal, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return decimal.Zero, fmt.Errorf("missing field %s", key)
	}
	d, err := decimal.NewFromString(strings.Trim(string(raw), `"`))
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %s: %w", key, err)
	}
	return d, nil
}
