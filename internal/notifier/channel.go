package notifier

import (
	"context"
	"errors"

	"CryptoWatch/internal/model"
)

// ErrPublishFailed wraps any failure of a single fanout channel.
var ErrPublishFailed = errors.New("publish failed")

// Channel is one notification destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *model.Notification) error
}
