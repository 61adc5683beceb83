// Package runid generates identifiers that tag every log line of one invocation.
package runid

import (
	"time"

	"github.com/google/uuid"
)

// New returns "<uuid>#<YYYY-MM-DD_HH:MM:SS>".
func New() string {
	return NewAt(time.Now())
}

// NewAt is New with an explicit timestamp.
func NewAt(t time.Time) string {
	return uuid.NewString() + "#" + t.Format("2006-01-02_15:04:05")
}
