package notifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/model"
)

// Outcome is the result of one channel publish.
type Outcome struct {
	Channel string
	Err     error
}

// Dispatcher fans a notification out to every channel. Channels are invoked in order and
// each runs in its own recovering scope, so one failure never prevents the others.
type Dispatcher struct {
	Channels []Channel
	Retries  int
	Backoff  time.Duration
	Metrics  *metrics.Metrics
}

func NewDispatcher(m *metrics.Metrics, retries int, channels ...Channel) *Dispatcher {
	return &Dispatcher{Channels: channels, Retries: retries, Backoff: time.Second, Metrics: m}
}

// Dispatch publishes n on every channel and returns one Outcome per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, n *model.Notification) []Outcome {
	outcomes := make([]Outcome, 0, len(d.Channels))
	for _, ch := range d.Channels {
		err := d.sendWithRetry(ctx, ch, n)
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPublishFailed, ch.Name(), err)
			log.Printf("[ERROR] %v, run id: %s", err, n.RunID)
		}
		d.Metrics.Published(ch.Name(), err)
		outcomes = append(outcomes, Outcome{Channel: ch.Name(), Err: err})
	}
	return outcomes
}

// sendWithRetry sends with exponential backoff retry.
func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, n *model.Notification) error {
	var lastErr error
	for i := 0; i <= d.Retries; i++ {
		if lastErr = safeSend(ctx, ch, n); lastErr == nil {
			return nil
		}
		if i == d.Retries {
			break
		}
		backoff := d.Backoff * time.Duration(1<<uint(i))
		log.Printf("[WARN] %s send failed (attempt %d/%d): %v, retrying in %v, run id: %s",
			ch.Name(), i+1, d.Retries+1, lastErr, backoff, n.RunID)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func safeSend(ctx context.Context, ch Channel, n *model.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ch.Send(ctx, n)
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
