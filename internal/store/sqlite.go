package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"CryptoWatch/internal/model"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	_ Store     = (*SQLiteStore)(nil)
	_ ChangeLog = (*SQLiteStore)(nil)
)

// SQLiteStore keeps prices and their change log in a single SQLite database.
// Numeric fields are stored as decimal text so repeated upserts never drift.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_store (
			id_symbol      TEXT PRIMARY KEY,
			price_usd      TEXT NOT NULL,
			market_cap_usd TEXT NOT NULL,
			volume_24h_usd TEXT NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS price_changes (
			seq                INTEGER PRIMARY KEY AUTOINCREMENT,
			id_symbol          TEXT NOT NULL,
			old_price_usd      TEXT,
			old_market_cap_usd TEXT,
			old_volume_24h_usd TEXT,
			old_updated_at     INTEGER,
			new_price_usd      TEXT NOT NULL,
			new_market_cap_usd TEXT NOT NULL,
			new_volume_24h_usd TEXT NOT NULL,
			created_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_ts ON price_changes(created_at)`,

		`CREATE TABLE IF NOT EXISTS feed_cursors (
			consumer TEXT PRIMARY KEY,
			seq      INTEGER NOT NULL
		)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

// Upsert writes rec and records the mutation in the change log within one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, rec model.PriceRecord) (model.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	old, found, err := getRecord(ctx, tx, rec.Symbol)
	if err != nil {
		return model.ChangeEvent{}, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO price_store
		(id_symbol, price_usd, market_cap_usd, volume_24h_usd, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(id_symbol) DO UPDATE SET
			price_usd = excluded.price_usd,
			market_cap_usd = excluded.market_cap_usd,
			volume_24h_usd = excluded.volume_24h_usd,
			updated_at = excluded.updated_at`,
		rec.Symbol, rec.Price.String(), rec.MarketCap.String(), rec.Volume24h.String(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("upsert %s: %w", rec.Symbol, err)
	}

	var oldPrice, oldCap, oldVol sql.NullString
	var oldTS sql.NullInt64
	if found {
		oldPrice = sql.NullString{String: old.Price.String(), Valid: true}
		oldCap = sql.NullString{String: old.MarketCap.String(), Valid: true}
		oldVol = sql.NullString{String: old.Volume24h.String(), Valid: true}
		oldTS = sql.NullInt64{Int64: old.UpdatedAt.UnixMilli(), Valid: true}
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO price_changes
		(id_symbol, old_price_usd, old_market_cap_usd, old_volume_24h_usd, old_updated_at,
		 new_price_usd, new_market_cap_usd, new_volume_24h_usd, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.Symbol, oldPrice, oldCap, oldVol, oldTS,
		rec.Price.String(), rec.MarketCap.String(), rec.Volume24h.String(), now.UnixMilli(),
	)
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("append change %s: %w", rec.Symbol, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("change seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("commit: %w", err)
	}

	ev := model.ChangeEvent{Seq: seq, Symbol: rec.Symbol, New: rec, CreatedAt: now}
	if found {
		ev.Old = &old
	}
	return ev, nil
}

// Get returns the live record for symbol.
func (s *SQLiteStore) Get(ctx context.Context, symbol string) (model.PriceRecord, bool, error) {
	return getRecord(ctx, s.db, symbol)
}

// List returns every live record ordered by symbol.
func (s *SQLiteStore) List(ctx context.Context) ([]model.PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id_symbol, price_usd, market_cap_usd, volume_24h_usd, updated_at
		FROM price_store ORDER BY id_symbol`)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var sym, price, mcap, vol string
		var ts int64
		if err := rows.Scan(&sym, &price, &mcap, &vol, &ts); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		rec, err := parseRecord(sym, price, mcap, vol, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadChanges returns up to limit change-log entries with seq > afterSeq, oldest first.
func (s *SQLiteStore) ReadChanges(ctx context.Context, afterSeq int64, limit int) ([]model.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, id_symbol,
			old_price_usd, old_market_cap_usd, old_volume_24h_usd, old_updated_at,
			new_price_usd, new_market_cap_usd, new_volume_24h_usd, created_at
		FROM price_changes WHERE seq > ? ORDER BY seq LIMIT ?`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	defer rows.Close()

	var out []model.ChangeEvent
	for rows.Next() {
		var (
			seq                    int64
			sym                    string
			oldPrice, oldCap, oldV sql.NullString
			oldTS                  sql.NullInt64
			newPrice, newCap, newV string
			createdAt              int64
		)
		if err := rows.Scan(&seq, &sym, &oldPrice, &oldCap, &oldV, &oldTS,
			&newPrice, &newCap, &newV, &createdAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		newRec, err := parseRecord(sym, newPrice, newCap, newV, createdAt)
		if err != nil {
			return nil, err
		}
		ev := model.ChangeEvent{Seq: seq, Symbol: sym, New: newRec, CreatedAt: time.UnixMilli(createdAt)}
		if oldPrice.Valid {
			oldRec, err := parseRecord(sym, oldPrice.String, oldCap.String, oldV.String, oldTS.Int64)
			if err != nil {
				return nil, err
			}
			ev.Old = &oldRec
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cursor returns the last acknowledged seq for consumer, 0 if none.
func (s *SQLiteStore) Cursor(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM feed_cursors WHERE consumer = ?`, consumer).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor %s: %w", consumer, err)
	}
	return seq, nil
}

// SaveCursor stores the last acknowledged seq for consumer.
func (s *SQLiteStore) SaveCursor(ctx context.Context, consumer string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO feed_cursors (consumer, seq) VALUES (?,?)
		ON CONFLICT(consumer) DO UPDATE SET seq = excluded.seq`, consumer, seq)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", consumer, err)
	}
	return nil
}

// PurgeChanges deletes change-log entries created before the given time that every feed
// consumer has already acknowledged. Entries at or behind no cursor are kept.
func (s *SQLiteStore) PurgeChanges(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM price_changes
		WHERE created_at < ?
		AND seq <= (SELECT COALESCE(MIN(seq), 0) FROM feed_cursors)`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge changes: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, symbol string) (model.PriceRecord, bool, error) {
	var price, mcap, vol string
	var ts int64
	err := q.QueryRowContext(ctx, `SELECT price_usd, market_cap_usd, volume_24h_usd, updated_at
		FROM price_store WHERE id_symbol = ?`, symbol).Scan(&price, &mcap, &vol, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PriceRecord{}, false, nil
	}
	if err != nil {
		return model.PriceRecord{}, false, fmt.Errorf("get %s: %w", symbol, err)
	}
	rec, err := parseRecord(symbol, price, mcap, vol, ts)
	if err != nil {
		return model.PriceRecord{}, false, err
	}
	return rec, true, nil
}

func parseRecord(symbol, price, mcap, vol string, tsMillis int64) (model.PriceRecord, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("parse price_usd for %s: %w", symbol, err)
	}
	m, err := decimal.NewFromString(mcap)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("parse market_cap_usd for %s: %w", symbol, err)
	}
	v, err := decimal.NewFromString(vol)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("parse volume_24h_usd for %s: %w", symbol, err)
	}
	return model.PriceRecord{
		Symbol:    symbol,
		Price:     p,
		MarketCap: m,
		Volume24h: v,
		UpdatedAt: time.UnixMilli(tsMillis),
	}, nil
}
