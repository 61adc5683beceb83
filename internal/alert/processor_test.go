package alert

import (
	"context"
	"errors"
	"testing"

	"CryptoWatch/internal/model"
	"CryptoWatch/internal/notifier"
	"CryptoWatch/internal/recorder"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureChannel struct {
	name  string
	err   error
	sent  []*model.Notification
	panic bool
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, n *model.Notification) error {
	c.sent = append(c.sent, n)
	if c.panic {
		panic("boom")
	}
	return c.err
}

type memRecorder struct {
	recorder.NoopRecorder
	notifications []recorder.NotificationEvent
	deadLetters   []recorder.DeadLetter
}

func (m *memRecorder) RecordNotification(evt *recorder.NotificationEvent) error {
	m.notifications = append(m.notifications, *evt)
	return nil
}

func (m *memRecorder) RecordDeadLetter(dl *recorder.DeadLetter) error {
	m.deadLetters = append(m.deadLetters, *dl)
	return nil
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(context.Context, *model.Notification) []notifier.Outcome {
	panic("dispatcher exploded")
}

func rec(symbol, price string) model.PriceRecord {
	return model.PriceRecord{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(price),
		MarketCap: decimal.RequireFromString("900000000000"),
		Volume24h: decimal.RequireFromString("25000000000"),
	}
}

func change(seq int64, symbol, oldPrice, newPrice string) model.ChangeEvent {
	ev := model.ChangeEvent{Seq: seq, Symbol: symbol, New: rec(symbol, newPrice)}
	if oldPrice != "" {
		old := rec(symbol, oldPrice)
		ev.Old = &old
	}
	return ev
}

type harness struct {
	topic, telegram, webhook *captureChannel
	rec                      *memRecorder
	proc                     *Processor
}

func newHarness(threshold string) *harness {
	h := &harness{
		topic:    &captureChannel{name: "topic"},
		telegram: &captureChannel{name: "telegram"},
		webhook:  &captureChannel{name: "webhook"},
		rec:      &memRecorder{},
	}
	d := notifier.NewDispatcher(nil, 0, h.topic, h.telegram, h.webhook)
	h.proc = NewProcessor(decimal.RequireFromString(threshold), d, h.rec, nil)
	return h
}

func (h *harness) publishCalls() int {
	return len(h.topic.sent) + len(h.telegram.sent) + len(h.webhook.sent)
}

func TestProcess_DropNotifiesAllChannels(t *testing.T) {
	h := newHarness("5.0")
	h.telegram.err = errors.New("telegram down")

	res := h.proc.Process(context.Background(), "run-1", change(1, "bitcoin", "50000", "45000"))
	require.NoError(t, res.Err)
	assert.True(t, res.Decision.Notify)
	assert.Equal(t, "-10", res.Decision.Change.String())

	assert.Equal(t, 3, h.publishCalls(), "every channel is attempted even when one fails")
	require.Len(t, res.Outcomes, 3)
	assert.True(t, errors.Is(res.Outcomes[1].Err, notifier.ErrPublishFailed))

	msg := h.webhook.sent[0].Text
	assert.Contains(t, msg, "-10.0")
	assert.Contains(t, msg, "45000")
	assert.Contains(t, msg, "900000000000")
	assert.Contains(t, msg, "25000000000")
	assert.Equal(t, "CryptoWatch price notification- bitcoin", h.topic.sent[0].Subject)

	require.Len(t, h.rec.notifications, 3)
	assert.Equal(t, "-10.00", h.rec.notifications[0].Change)
	assert.NotEmpty(t, h.rec.notifications[1].Error)
	assert.Empty(t, h.rec.notifications[2].Error)
}

func TestProcess_RiseReportedPositive(t *testing.T) {
	h := newHarness("5")
	res := h.proc.Process(context.Background(), "run", change(1, "bitcoin", "100", "105"))
	require.NoError(t, res.Err)
	assert.Equal(t, "5", res.Decision.Change.String())
	assert.Contains(t, h.topic.sent[0].Text, "+5.00%")
}

func TestProcess_Threshold(t *testing.T) {
	h := newHarness("2.0")

	h.proc.Process(context.Background(), "run", change(1, "bitcoin", "100", "101.9"))
	assert.Zero(t, h.publishCalls())

	h.proc.Process(context.Background(), "run", change(2, "bitcoin", "100", "102"))
	assert.Equal(t, 3, h.publishCalls())
}

func TestProcess_FirstObservationIsNoop(t *testing.T) {
	h := newHarness("0")
	res := h.proc.Process(context.Background(), "run", change(1, "bitcoin", "", "50000"))
	assert.NoError(t, res.Err)
	assert.Zero(t, h.publishCalls())
	assert.Empty(t, h.rec.deadLetters)
}

func TestProcess_ZeroPreviousPrice(t *testing.T) {
	h := newHarness("1")
	res := h.proc.Process(context.Background(), "run", change(1, "bitcoin", "0", "50000"))
	assert.Zero(t, h.publishCalls())
	require.Len(t, h.rec.deadLetters, 1)
	assert.Equal(t, recorder.SourceNotify, h.rec.deadLetters[0].Source)
	assert.Contains(t, h.rec.deadLetters[0].Payload, `"price_usd":"0"`)
	assert.Error(t, res.Err)
}

func TestHandleBatch_FailureDoesNotBlockLaterEvents(t *testing.T) {
	h := newHarness("5")
	batch := []model.ChangeEvent{
		change(1, "bitcoin", "0", "10"),
		change(2, "ethereum", "", "3000"),
		change(3, "solana", "100", "80"),
	}
	require.NoError(t, h.proc.HandleBatch(context.Background(), batch))
	assert.Equal(t, 3, h.publishCalls())
	assert.Equal(t, "solana", h.topic.sent[0].Symbol)
}

func TestHandleBatch_UnexpectedFaultIsDeadLettered(t *testing.T) {
	r := &memRecorder{}
	p := NewProcessor(decimal.NewFromInt(1), panicDispatcher{}, r, nil)

	err := p.HandleBatch(context.Background(), []model.ChangeEvent{
		change(1, "bitcoin", "100", "50"),
		change(2, "ethereum", "100", "50"),
	})
	require.NoError(t, err)
	require.Len(t, r.deadLetters, 2)
	assert.Contains(t, r.deadLetters[0].Reason, "dispatcher exploded")
}

func TestHandleBatch_Cancelled(t *testing.T) {
	h := newHarness("5")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.proc.HandleBatch(ctx, []model.ChangeEvent{change(1, "bitcoin", "100", "50")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.publishCalls())
}

func TestDecodeBatch(t *testing.T) {
	b := Batch{Records: []EventPayload{
		{Seq: 1, NewImage: Image{Symbol: "bitcoin", Price: "50000", MarketCap: "1e12", Volume24h: "3e10"}},
		{Seq: 2,
			OldImage: &Image{Symbol: "bitcoin", Price: "50000", MarketCap: "1e12", Volume24h: "3e10"},
			NewImage: Image{Symbol: "bitcoin", Price: "45000", MarketCap: "9e11", Volume24h: "2e10"}},
	}}
	events, err := DecodeBatch(b)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].HasPrevious())
	require.True(t, events[1].HasPrevious())
	assert.Equal(t, "50000", events[1].Old.Price.String())

	_, err = DecodeBatch(Batch{Records: []EventPayload{{NewImage: Image{Symbol: "x", Price: "abc"}}}})
	assert.Error(t, err)
}

type brokenRecorder struct {
	recorder.NoopRecorder
}

func (*brokenRecorder) RecordDeadLetter(*recorder.DeadLetter) error {
	return errors.New("disk full")
}

func TestHandleBatch_UnrecordableFailureIsReturned(t *testing.T) {
	d := notifier.NewDispatcher(nil, 0, &captureChannel{name: "topic"})
	p := NewProcessor(decimal.NewFromInt(1), d, &brokenRecorder{}, nil)

	err := p.HandleBatch(context.Background(), []model.ChangeEvent{
		change(1, "bitcoin", "0", "10"),
		change(2, "ethereum", "100", "50"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	ok := p.HandleBatch(context.Background(), []model.ChangeEvent{change(3, "ethereum", "100", "50")})
	assert.NoError(t, ok)
}
