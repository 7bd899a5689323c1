package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Actions allowed on the ledger.
const (
	ActionSignIn  = "sign-in"
	ActionSignOut = "sign-out"
)

// DefaultLocation is recorded when the caller supplies none.
const DefaultLocation = "Office"

var (
	// ErrStorageUnavailable wraps any collection store failure. The core
	// does not retry; the caller owns retry policy.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidAction rejects actions outside the sign-in/sign-out enum.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidRecord marks a stored record that cannot be used
	// (undecodable body or unparseable timestamp). Such records are
	// excluded from aggregation, never fatal.
	ErrInvalidRecord = errors.New("invalid record")
)

// Event is a single sign-in or sign-out occurrence. Immutable once
// appended; the username is a display label captured at creation time
// and does not follow later renames.
type Event struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Location  string `json:"location,omitempty"`
}

// Time parses the event's ISO-8601 timestamp. Stored data is not
// trusted: a malformed timestamp yields ErrInvalidRecord so aggregation
// can skip the event instead of failing the whole report.
func (e Event) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: event %d: bad timestamp %q", ErrInvalidRecord, e.ID, e.Timestamp)
	}
	return t, nil
}

// ValidAction reports whether action is in the allowed enum.
func ValidAction(action string) bool {
	return action == ActionSignIn || action == ActionSignOut
}
