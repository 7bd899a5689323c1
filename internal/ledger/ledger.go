package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"attendledger/internal/metrics"
	"attendledger/internal/store"
)

// DefaultCollection is the store collection holding the ledger.
const DefaultCollection = "attendance"

// Ledger is the append-only event log. Appends are serialized through a
// single mutex so two near-simultaneous writers cannot race the
// read-modify-write cycle and drop each other's event.
type Ledger struct {
	store      store.Store
	collection string

	mu     sync.Mutex
	lastID int64

	now func() time.Time
}

// New creates a ledger over the given collection store.
func New(st store.Store, collection string) *Ledger {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Ledger{store: st, collection: collection, now: time.Now}
}

// Record validates and appends a new event for the given actor.
// Fails with ErrInvalidAction for actions outside the enum.
func (l *Ledger) Record(ctx context.Context, userID int64, username, action, location string) (Event, error) {
	if !ValidAction(action) {
		return Event{}, fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidAction, action, ActionSignIn, ActionSignOut)
	}
	if location == "" {
		location = DefaultLocation
	}
	return l.Append(ctx, Event{
		UserID:   userID,
		Username: username,
		Action:   action,
		Location: location,
	})
}

// Append assigns an id and timestamp when absent and durably records the
// event at the end of the collection. Ids are creation-time derived and
// strictly increasing; ties with an earlier append get the next id up.
func (l *Ledger) Append(ctx context.Context, evt Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Read(ctx, l.collection)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	maxID := l.lastID
	for _, raw := range records {
		var prev Event
		if json.Unmarshal(raw, &prev) == nil && prev.ID > maxID {
			maxID = prev.ID
		}
	}

	now := l.now().UTC()
	if evt.ID == 0 {
		evt.ID = now.UnixMilli()
		if evt.ID <= maxID {
			evt.ID = maxID + 1
		}
	}
	if evt.Timestamp == "" {
		evt.Timestamp = now.Format(time.RFC3339)
	}
	l.lastID = evt.ID

	body, err := json.Marshal(evt)
	if err != nil {
		return Event{}, fmt.Errorf("encode event: %w", err)
	}
	if err := l.store.Write(ctx, l.collection, append(records, body)); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	metrics.EventsRecorded.Inc()
	return evt, nil
}

// FetchAll returns every event in insertion order. Records that fail to
// decode are logged and skipped so one corrupt entry cannot poison the
// whole ledger read.
func (l *Ledger) FetchAll(ctx context.Context) ([]Event, error) {
	records, err := l.store.Read(ctx, l.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	events := make([]Event, 0, len(records))
	for i, raw := range records {
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			log.Printf("ledger: skipping undecodable record %d in %s: %v", i, l.collection, err)
			metrics.InvalidRecords.Inc()
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

// Get returns a single event by id, or nil when absent.
func (l *Ledger) Get(ctx context.Context, id int64) (*Event, error) {
	events, err := l.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].ID == id {
			return &events[i], nil
		}
	}
	return nil, nil
}
