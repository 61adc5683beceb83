package notifier

import (
	"context"
	"log"

	"CryptoWatch/internal/model"
	"CryptoWatch/internal/topic"
)

// TopicNotifier publishes to the pub/sub topic, which fans out to email subscribers.
type TopicNotifier struct {
	Topic topic.Topic
}

func NewTopicNotifier(t topic.Topic) *TopicNotifier { return &TopicNotifier{Topic: t} }

func (t *TopicNotifier) Name() string { return "topic" }

func (t *TopicNotifier) Send(ctx context.Context, n *model.Notification) error {
	id, err := t.Topic.Publish(ctx, n.Subject, n.Text)
	if err != nil {
		return err
	}
	log.Printf("[INFO] published %s message id %s, run id: %s", n.Symbol, id, n.RunID)
	return nil
}
