// Package topic is the pub/sub topic that fans notifications out to subscribers.
package topic

import (
	"context"
	"time"
)

// Subscription status values.
const (
	StatusPendingConfirmation = "pending confirmation"
	StatusConfirmed           = "confirmed"
)

// Subscription is one endpoint registered on the topic.
type Subscription struct {
	ID        string    `json:"id"`
	Protocol  string    `json:"protocol"`
	Endpoint  string    `json:"endpoint"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a published notification as seen by subscribers.
type Message struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
}

// Topic publishes messages and manages subscriptions.
type Topic interface {
	Publish(ctx context.Context, subject, body string) (string, error)
	Subscribe(ctx context.Context, protocol, endpoint string) (Subscription, error)
	Subscriptions(ctx context.Context) ([]Subscription, error)
}
