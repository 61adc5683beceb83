package recorder

import "time"

// Dead-letter sources.
const (
	SourceIngest = "INGEST"
	SourceFeed   = "FEED"
	SourceNotify = "NOTIFY"
)

// NotificationEvent records the outcome of one channel publish.
type NotificationEvent struct {
	RunID   string
	Symbol  string
	Channel string
	Change  string // signed percent
	Error   string // empty on success
}

// DeadLetter holds an invocation that failed processing, kept for inspection.
type DeadLetter struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	RunID     string    `json:"run_id"`
	Reason    string    `json:"reason"`
	Payload   string    `json:"payload"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder persists delivery outcomes and failed invocations.
type Recorder interface {
	RecordNotification(evt *NotificationEvent) error
	RecordDeadLetter(dl *DeadLetter) error
	DeadLetters(limit int) ([]DeadLetter, error)
	PurgeDeadLetters(before time.Time) (int64, error)
	Close() error
}
