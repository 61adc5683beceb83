package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	name     string
	failures int // number of initial calls that fail
	panics   bool
	calls    int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(_ context.Context, _ *model.Notification) error {
	s.calls++
	if s.panics {
		panic("nil webhook client")
	}
	if s.calls <= s.failures {
		return errors.New("unavailable")
	}
	return nil
}

func TestDispatch_IndependentFailures(t *testing.T) {
	topicCh := &stubChannel{name: "topic", failures: 100}
	telegram := &stubChannel{name: "telegram", panics: true}
	webhook := &stubChannel{name: "webhook"}

	m := metrics.New("test", prometheus.NewRegistry())
	d := NewDispatcher(m, 0, topicCh, telegram, webhook)
	outcomes := d.Dispatch(context.Background(), &model.Notification{RunID: "r"})

	require.Len(t, outcomes, 3)
	assert.Equal(t, "topic", outcomes[0].Channel)
	assert.True(t, errors.Is(outcomes[0].Err, ErrPublishFailed))
	assert.True(t, errors.Is(outcomes[1].Err, ErrPublishFailed))
	assert.Contains(t, outcomes[1].Err.Error(), "panic")
	assert.NoError(t, outcomes[2].Err)

	assert.Equal(t, 1, topicCh.calls)
	assert.Equal(t, 1, telegram.calls)
	assert.Equal(t, 1, webhook.calls)
	assert.Len(t, Failed(outcomes), 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("webhook", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("topic", "error")))
}

func TestDispatch_Retries(t *testing.T) {
	flaky := &stubChannel{name: "webhook", failures: 2}
	d := NewDispatcher(nil, 2, flaky)
	d.Backoff = time.Millisecond

	outcomes := d.Dispatch(context.Background(), &model.Notification{})
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 3, flaky.calls)
}

func TestDispatch_RetryStopsOnCancel(t *testing.T) {
	down := &stubChannel{name: "webhook", failures: 100}
	d := NewDispatcher(nil, 5, down)
	d.Backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := d.Dispatch(ctx, &model.Notification{})
	assert.True(t, errors.Is(outcomes[0].Err, ErrPublishFailed))
	assert.Equal(t, 1, down.calls)
}

func TestDispatch_NoChannels(t *testing.T) {
	assert.Empty(t, NewDispatcher(nil, 0).Dispatch(context.Background(), &model.Notification{}))
}
