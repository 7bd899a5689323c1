package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"attendledger/internal/store"
)

// Collection is the store collection holding the activity log.
const Collection = "activity"

// Entry is one line of the operational activity log, written by the
// worker as it processes recorded events.
type Entry struct {
	EventID int64  `json:"eventId"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail,omitempty"`
	At      string `json:"at"`
}

// Logger appends activity entries to the store, serialized like the
// ledger since writes replace the whole collection.
type Logger struct {
	store store.Store
	mu    sync.Mutex
}

// NewLogger creates a logger over the given store.
func NewLogger(st store.Store) *Logger {
	return &Logger{store: st}
}

// Append records one entry, stamping it if unstamped.
func (l *Logger) Append(ctx context.Context, entry Entry) error {
	if entry.At == "" {
		entry.At = time.Now().UTC().Format(time.RFC3339)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Read(ctx, Collection)
	if err != nil {
		return fmt.Errorf("read activity: %w", err)
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := l.store.Write(ctx, Collection, append(records, body)); err != nil {
		return fmt.Errorf("write activity: %w", err)
	}
	return nil
}
