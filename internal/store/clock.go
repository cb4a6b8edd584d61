package store

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Stores accept one so tests can control time.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// NewID allocates a time-ordered identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// MessageTime returns the timestamp for a message appended now to a
// conversation last updated at updatedAt. It never goes backwards.
func MessageTime(now, updatedAt time.Time) time.Time {
	if now.Before(updatedAt) {
		return updatedAt
	}
	return now
}
