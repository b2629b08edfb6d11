// Package clock is the C3 component: a single source of UTC-aware time and
// UUID v4 identifiers, shared by every other component so that no two
// packages disagree about "now".
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so usecases can be tested without a wall clock.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock — always UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// NewID generates a random UUID v4.
func NewID() string { return uuid.NewString() }

// CoerceUTC normalizes a timestamp that may have been read naive (no
// location) from a legacy store into UTC.
func CoerceUTC(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return t.UTC()
}
