// Package alert turns store change events into price notifications.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"CryptoWatch/internal/calculator"
	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/model"
	"CryptoWatch/internal/notifier"
	"CryptoWatch/internal/recorder"
	"CryptoWatch/internal/runid"
	"CryptoWatch/internal/strategy"

	"github.com/shopspring/decimal"
)

// Dispatcher fans a notification out to its channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *model.Notification) []notifier.Outcome
}

// Result describes how one change event was handled.
type Result struct {
	Seq      int64
	Symbol   string
	Decision strategy.Decision
	Outcomes []notifier.Outcome
	Err      error

	// DeadLetterErr is set when a failed event could not be written to the dead-letter store.
	DeadLetterErr error
}

// Processor evaluates change events against the threshold and notifies on large moves.
type Processor struct {
	Threshold  decimal.Decimal
	Dispatcher Dispatcher
	Recorder   recorder.Recorder
	Metrics    *metrics.Metrics
}

func NewProcessor(threshold decimal.Decimal, d Dispatcher, rec recorder.Recorder, m *metrics.Metrics) *Processor {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Processor{Threshold: threshold, Dispatcher: d, Recorder: rec, Metrics: m}
}

// HandleBatch processes every event in order. A failing event is reported and never blocks the
// events after it. An error is returned when ctx is cancelled or when a failed event could not be
// dead-lettered, so the feed redelivers the batch instead of losing it.
func (p *Processor) HandleBatch(ctx context.Context, batch []model.ChangeEvent) error {
	id := runid.New()
	var lost []error
	for _, ev := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res := p.Process(ctx, id, ev); res.DeadLetterErr != nil {
			lost = append(lost, res.DeadLetterErr)
		}
	}
	if len(lost) > 0 {
		return fmt.Errorf("%d of %d events could not be dead-lettered, run id %s: %w", len(lost), len(batch), id, lost[0])
	}
	return nil
}

// Process handles a single change event inside a recovering scope.
func (p *Processor) Process(ctx context.Context, id string, ev model.ChangeEvent) (res Result) {
	res = Result{Seq: ev.Seq, Symbol: ev.Symbol}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("unexpected fault: %v", r)
			log.Printf("[ERROR] %s seq %d: %v, run id: %s", ev.Symbol, ev.Seq, res.Err, id)
			p.Metrics.ChangeHandled("fault")
			res.DeadLetterErr = p.deadLetter(id, ev, res.Err)
		}
	}()

	if !ev.HasPrevious() {
		log.Printf("[INFO] first observation of %s, skipping, run id: %s", ev.Symbol, id)
		p.Metrics.ChangeHandled("first_observation")
		return res
	}

	dec, err := strategy.Evaluate(ev, p.Threshold)
	if err != nil {
		res.Err = err
		if errors.Is(err, calculator.ErrInvalidPreviousPrice) {
			log.Printf("[WARN] skip notification: %v, run id: %s", err, id)
			p.Metrics.ChangeHandled("invalid_previous_price")
			res.DeadLetterErr = p.deadLetter(id, ev, err)
			return res
		}
		log.Printf("[ERROR] evaluate %s: %v, run id: %s", ev.Symbol, err, id)
		p.Metrics.ChangeHandled("error")
		return res
	}
	res.Decision = dec
	log.Printf("[INFO] percent diff %s for symbol %s, run id: %s", dec.Magnitude.StringFixed(4), ev.Symbol, id)

	if !dec.Notify {
		p.Metrics.ChangeHandled("below_threshold")
		return res
	}

	n := notifier.NewNotification(id, dec.Change, ev.New)
	log.Printf("[INFO] sending notification for %s, run id: %s", ev.Symbol, id)
	res.Outcomes = p.Dispatcher.Dispatch(ctx, n)
	p.Metrics.ChangeHandled("notified")

	for _, o := range res.Outcomes {
		evt := &recorder.NotificationEvent{
			RunID:   id,
			Symbol:  ev.Symbol,
			Channel: o.Channel,
			Change:  notifier.FormatChange(dec.Change),
		}
		if o.Err != nil {
			evt.Error = o.Err.Error()
		}
		if err := p.Recorder.RecordNotification(evt); err != nil {
			log.Printf("[ERROR] record notification: %v, run id: %s", err, id)
		}
	}
	return res
}

func (p *Processor) deadLetter(id string, ev model.ChangeEvent, cause error) error {
	payload, _ := json.Marshal(EncodeEvent(ev))
	if err := p.Recorder.RecordDeadLetter(&recorder.DeadLetter{
		Source:   recorder.SourceNotify,
		RunID:    id,
		Reason:   cause.Error(),
		Payload:  string(payload),
		Attempts: 1,
	}); err != nil {
		log.Printf("[ERROR] record dead letter: %v, run id: %s", err, id)
		return fmt.Errorf("dead-letter %s seq %d: %w", ev.Symbol, ev.Seq, err)
	}
	p.Metrics.DeadLetter(recorder.SourceNotify)
	return nil
}
