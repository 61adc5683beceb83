package collector

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/model"
	"CryptoWatch/internal/runid"
	"CryptoWatch/internal/store"
)

// MockFetcher returns fixed quotes for development and testing.
type MockFetcher struct {
	Quotes   map[string]Quote
	PingErr  error
	FetchErr error
	Calls    int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Ping(_ context.Context) error { return m.PingErr }

func (m *MockFetcher) FetchQuotes(_ context.Context, symbols []string) (map[string]Quote, error) {
	m.Calls++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := m.Quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

// Ingestor fetches the configured symbols and upserts them into the store.
type Ingestor struct {
	Fetcher Fetcher
	Store   store.Store
	Symbols []string
	Metrics *metrics.Metrics
}

// NewIngestor creates a new Ingestor.
func NewIngestor(fetcher Fetcher, st store.Store, symbols []string, m *metrics.Metrics) *Ingestor {
	return &Ingestor{Fetcher: fetcher, Store: st, Symbols: symbols, Metrics: m}
}

// Result summarises one ingest invocation.
type Result struct {
	RunID    string
	Upserted []string
	Missing  []string
}

// Run performs one ingest invocation with a fresh run id.
func (i *Ingestor) Run(ctx context.Context) (*Result, error) {
	return i.RunWithID(ctx, runid.New())
}

// RunWithID checks API health, fetches all symbols in one request and upserts each record.
// Health or fetch failures abort before any write. Upserts are independent per symbol.
func (i *Ingestor) RunWithID(ctx context.Context, id string) (*Result, error) {
	res := &Result{RunID: id}

	if err := i.Fetcher.Ping(ctx); err != nil {
		i.Metrics.IngestRun("unavailable")
		return res, fmt.Errorf("run id %s: %w", id, err)
	}

	quotes, err := i.Fetcher.FetchQuotes(ctx, i.Symbols)
	if err != nil {
		i.Metrics.IngestRun("fetch_failed")
		return res, fmt.Errorf("run id %s: %w", id, err)
	}
	log.Printf("[INFO] fetched %d/%d symbols from %s, run id: %s", len(quotes), len(i.Symbols), i.Fetcher.Name(), id)

	symbols := make([]string, 0, len(quotes))
	for s := range quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	now := time.Now()
	var upsertErrs []error
	for _, s := range symbols {
		q := quotes[s]
		ev, err := i.Store.Upsert(ctx, model.PriceRecord{
			Symbol:    s,
			Price:     q.Price,
			MarketCap: q.MarketCap,
			Volume24h: q.Volume24h,
			UpdatedAt: now,
		})
		if err != nil {
			log.Printf("[ERROR] upsert %s: %v, run id: %s", s, err, id)
			upsertErrs = append(upsertErrs, err)
			continue
		}
		i.Metrics.RecordUpserted()
		res.Upserted = append(res.Upserted, s)
		log.Printf("[INFO] upserted %s price=%s seq=%d, run id: %s", s, q.Price, ev.Seq, id)
	}

	for _, s := range i.Symbols {
		if _, ok := quotes[s]; !ok {
			res.Missing = append(res.Missing, s)
		}
	}
	if len(res.Missing) > 0 {
		log.Printf("[WARN] no data for symbols %v, run id: %s", res.Missing, id)
	}

	if len(upsertErrs) > 0 {
		i.Metrics.IngestRun("store_failed")
		return res, fmt.Errorf("run id %s: %d of %d upserts failed: %w", id, len(upsertErrs), len(symbols), upsertErrs[0])
	}
	i.Metrics.IngestRun("ok")
	return res, nil
}
