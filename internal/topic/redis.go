package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisTopic implements Topic
var _ Topic = (*RedisTopic)(nil)

// RedisTopic publishes on a Redis channel and keeps the subscriber registry in a hash.
type RedisTopic struct {
	client     *redis.Client
	id         string
	historyLen int64
}

func NewRedisTopic(client *redis.Client, id string, historyLen int64) *RedisTopic {
	if historyLen <= 0 {
		historyLen = 1000
	}
	return &RedisTopic{client: client, id: id, historyLen: historyLen}
}

func (t *RedisTopic) channel() string { return "topic:" + t.id }

func (t *RedisTopic) historyKey() string { return t.channel() + ":messages" }

func (t *RedisTopic) subscriptionKey() string { return t.channel() + ":subscriptions" }

func subscriptionField(protocol, endpoint string) string {
	return protocol + ":" + strings.ToLower(endpoint)
}

// Publish broadcasts the message to live listeners and appends it to the capped history list.
func (t *RedisTopic) Publish(ctx context.Context, subject, body string) (string, error) {
	msg := Message{
		ID:          uuid.NewString(),
		Subject:     subject,
		Body:        body,
		PublishedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	pipe := t.client.TxPipeline()
	pipe.LPush(ctx, t.historyKey(), payload)
	pipe.LTrim(ctx, t.historyKey(), 0, t.historyLen-1)
	pipe.Publish(ctx, t.channel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("publish to %s: %w", t.id, err)
	}
	return msg.ID, nil
}

// Subscribe registers an endpoint. Registering the same endpoint twice returns the existing subscription.
func (t *RedisTopic) Subscribe(ctx context.Context, protocol, endpoint string) (Subscription, error) {
	field := subscriptionField(protocol, endpoint)

	existing, err := t.client.HGet(ctx, t.subscriptionKey(), field).Result()
	if err == nil {
		var sub Subscription
		if err := json.Unmarshal([]byte(existing), &sub); err != nil {
			return Subscription{}, fmt.Errorf("decode subscription: %w", err)
		}
		return sub, nil
	}
	if !errors.Is(err, redis.Nil) {
		return Subscription{}, fmt.Errorf("lookup subscription: %w", err)
	}

	sub := Subscription{
		ID:        uuid.NewString(),
		Protocol:  protocol,
		Endpoint:  endpoint,
		Status:    StatusPendingConfirmation,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return Subscription{}, fmt.Errorf("marshal subscription: %w", err)
	}
	// HSETNX keeps the first writer when two requests race.
	ok, err := t.client.HSetNX(ctx, t.subscriptionKey(), field, payload).Result()
	if err != nil {
		return Subscription{}, fmt.Errorf("store subscription: %w", err)
	}
	if !ok {
		return t.Subscribe(ctx, protocol, endpoint)
	}
	return sub, nil
}

// Subscriptions lists every registered endpoint ordered by endpoint.
func (t *RedisTopic) Subscriptions(ctx context.Context) ([]Subscription, error) {
	all, err := t.client.HGetAll(ctx, t.subscriptionKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	subs := make([]Subscription, 0, len(all))
	for _, v := range all {
		var sub Subscription
		if err := json.Unmarshal([]byte(v), &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Endpoint < subs[j].Endpoint })
	return subs, nil
}

// History returns up to n most recent messages, newest first.
func (t *RedisTopic) History(ctx context.Context, n int64) ([]Message, error) {
	raw, err := t.client.LRange(ctx, t.historyKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Listen delivers published messages to onMessage until ctx is cancelled.
func (t *RedisTopic) Listen(ctx context.Context, onMessage func(Message)) error {
	ps := t.client.Subscribe(ctx, t.channel())
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", t.channel(), err)
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				continue
			}
			onMessage(m)
		}
	}
}
