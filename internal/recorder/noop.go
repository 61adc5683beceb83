package recorder

import "time"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordNotification(_ *NotificationEvent) error { return nil }
func (n *NoopRecorder) RecordDeadLetter(_ *DeadLetter) error          { return nil }
func (n *NoopRecorder) DeadLetters(_ int) ([]DeadLetter, error)       { return nil, nil }
func (n *NoopRecorder) PurgeDeadLetters(_ time.Time) (int64, error)   { return 0, nil }
func (n *NoopRecorder) Close() error                                  { return nil }
