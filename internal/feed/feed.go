// Package feed delivers the store's change log to a batch handler, in order, at least once.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"CryptoWatch/internal/alert"
	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/model"
	"CryptoWatch/internal/recorder"
	"CryptoWatch/internal/store"
)

// Handler processes one ordered batch of change events.
type Handler func(ctx context.Context, batch []model.ChangeEvent) error

// Feed polls the change log after a persisted cursor and hands batches to Handler.
// A failing batch is redelivered until MaxAttempts, then dead-lettered and skipped.
type Feed struct {
	Name        string
	Log         store.ChangeLog
	Handler     Handler
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
	DeadLetters recorder.Recorder
	Metrics     *metrics.Metrics

	failedSeq int64
	attempts  int
}

// New creates a Feed for consumer name.
func New(name string, cl store.ChangeLog, h Handler, dl recorder.Recorder, m *metrics.Metrics) *Feed {
	if dl == nil {
		dl = recorder.NewNoopRecorder()
	}
	return &Feed{
		Name:        name,
		Log:         cl,
		Handler:     h,
		BatchSize:   100,
		Interval:    2 * time.Second,
		MaxAttempts: 3,
		DeadLetters: dl,
		Metrics:     m,
	}
}

// Poll delivers at most one batch and reports how many events were acknowledged.
func (f *Feed) Poll(ctx context.Context) (int, error) {
	cursor, err := f.Log.Cursor(ctx, f.Name)
	if err != nil {
		return 0, err
	}
	batch, err := f.Log.ReadChanges(ctx, cursor, f.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	first, last := batch[0].Seq, batch[len(batch)-1].Seq

	if err := f.Handler(ctx, batch); err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		if f.failedSeq != first {
			f.failedSeq, f.attempts = first, 0
		}
		f.attempts++
		if f.attempts < f.MaxAttempts {
			log.Printf("[WARN] feed %s batch %d-%d failed (attempt %d/%d): %v",
				f.Name, first, last, f.attempts, f.MaxAttempts, err)
			return 0, err
		}
		log.Printf("[ERROR] feed %s batch %d-%d failed %d times, moving to dead letters: %v",
			f.Name, first, last, f.attempts, err)
		if dlErr := f.deadLetter(batch, err); dlErr != nil {
			return 0, fmt.Errorf("dead-letter batch %d-%d: %w", first, last, dlErr)
		}
	}
	f.failedSeq, f.attempts = 0, 0

	if err := f.Log.SaveCursor(ctx, f.Name, last); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// Run polls until ctx is cancelled. Full batches are drained without waiting for the next tick.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	log.Printf("[INFO] feed %s started", f.Name)
	for {
		for {
			n, err := f.Poll(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[ERROR] feed %s poll: %v", f.Name, err)
				}
				break
			}
			if n < f.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			log.Printf("[INFO] feed %s stopped", f.Name)
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) deadLetter(batch []model.ChangeEvent, cause error) error {
	records := make([]alert.EventPayload, 0, len(batch))
	for _, ev := range batch {
		records = append(records, alert.EncodeEvent(ev))
	}
	payload, err := json.Marshal(alert.Batch{Records: records})
	if err != nil {
		return err
	}
	if err := f.DeadLetters.RecordDeadLetter(&recorder.DeadLetter{
		Source:   recorder.SourceFeed,
		Reason:   cause.Error(),
		Payload:  string(payload),
		Attempts: f.attempts,
	}); err != nil {
		return err
	}
	f.Metrics.DeadLetter(recorder.SourceFeed)
	return nil
}
