package store

import (
	"context"
	"time"

	"CryptoWatch/internal/model"
)

// Store is the keyed price table. One live record per symbol; Upsert overwrites all three
// numeric fields and appends the before/after pair to the change log.
type Store interface {
	Upsert(ctx context.Context, rec model.PriceRecord) (model.ChangeEvent, error)
	Get(ctx context.Context, symbol string) (model.PriceRecord, bool, error)
	List(ctx context.Context) ([]model.PriceRecord, error)
	Close() error
}

// ChangeLog exposes the ordered stream of mutations written by Upsert.
type ChangeLog interface {
	ReadChanges(ctx context.Context, afterSeq int64, limit int) ([]model.ChangeEvent, error)
	Cursor(ctx context.Context, consumer string) (int64, error)
	SaveCursor(ctx context.Context, consumer string, seq int64) error
	// PurgeChanges never drops entries a consumer has not acknowledged.
	PurgeChanges(ctx context.Context, before time.Time) (int64, error)
}
