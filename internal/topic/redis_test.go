package topic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*RedisTopic, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisTopic(rdb, "cryptowatch", 2), mr
}

func TestRedisTopic_Subscribe(t *testing.T) {
	tp, _ := setup(t)
	ctx := context.Background()

	sub, err := tp.Subscribe(ctx, "email", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingConfirmation, sub.Status)
	assert.NotEmpty(t, sub.ID)

	again, err := tp.Subscribe(ctx, "email", "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID, "re-subscribing returns the existing subscription")

	_, err = tp.Subscribe(ctx, "email", "bob@example.com")
	require.NoError(t, err)

	subs, err := tp.Subscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "alice@example.com", subs[0].Endpoint)
	assert.Equal(t, "bob@example.com", subs[1].Endpoint)
}

func TestRedisTopic_PublishHistoryCapped(t *testing.T) {
	tp, _ := setup(t)
	ctx := context.Background()

	for _, subj := range []string{"one", "two", "three"} {
		id, err := tp.Publish(ctx, subj, "body "+subj)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	msgs, err := tp.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Subject)
	assert.Equal(t, "body two", msgs[1].Body)
}

func TestRedisTopic_Listen(t *testing.T) {
	tp, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []Message
	)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(ready)
		done <- tp.Listen(ctx, func(m Message) {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
		})
	}()
	<-ready

	require.Eventually(t, func() bool {
		// Publish until the listener has subscribed and received one.
		if _, err := tp.Publish(context.Background(), "price", "moved"); err != nil {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	mu.Lock()
	assert.Equal(t, "price", got[0].Subject)
	mu.Unlock()
}

func TestRedisTopic_Unavailable(t *testing.T) {
	tp, mr := setup(t)
	mr.Close()

	_, err := tp.Publish(context.Background(), "s", "b")
	assert.Error(t, err)
	_, err = tp.Subscribe(context.Background(), "email", "a@b.co")
	assert.Error(t, err)
}
