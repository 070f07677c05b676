package session

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps for session and trial transitions.
// Implemented by the wall clock (production) and a stepping clock
// (tests, see internal/testutil).
type Clock interface {
	Now() time.Time
}

// systemClock is the production wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TokenGenerator generates unique session tokens for run correlation.
// Implemented by UUIDv7Generator (production) and a fixed generator
// (tests, see internal/testutil).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens
// sort by creation time across runs, which is convenient when collating
// result files from many sessions.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
