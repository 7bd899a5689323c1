package report

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"attendledger/internal/ledger"
	"attendledger/internal/metrics"
)

// WindowType selects a reporting time range.
type WindowType string

const (
	WindowDaily   WindowType = "daily"
	WindowWeekly  WindowType = "weekly"
	WindowMonthly WindowType = "monthly"
	WindowCustom  WindowType = "custom"
)

const (
	weeklyDays  = 7
	monthlyDays = 30
)

// ErrInvalidWindow rejects unknown window types and custom windows with
// missing bounds. There is no default window.
var ErrInvalidWindow = errors.New("invalid window")

// Bounds are the inclusive start/end of a custom window.
type Bounds struct {
	Start time.Time
	End   time.Time
}

// FilterWindow returns the events inside the window, filtered and sorted
// by each event's own timestamp rather than array position (insertion
// order is not guaranteed to track time). Events with unparseable
// timestamps are excluded and counted, never fatal. Filtering an
// already-filtered result with the same window yields the same result.
func FilterWindow(events []ledger.Event, typ WindowType, now time.Time, bounds *Bounds) (kept []ledger.Event, excluded int, err error) {
	var inWindow func(t time.Time) bool
	switch typ {
	case WindowDaily:
		y, m, d := now.Date()
		inWindow = func(t time.Time) bool {
			ty, tm, td := t.Date()
			return ty == y && tm == m && td == d
		}
	case WindowWeekly:
		cutoff := now.AddDate(0, 0, -weeklyDays)
		inWindow = func(t time.Time) bool {
			return !t.Before(cutoff) && !t.After(now)
		}
	case WindowMonthly:
		cutoff := now.AddDate(0, 0, -monthlyDays)
		inWindow = func(t time.Time) bool {
			return !t.Before(cutoff) && !t.After(now)
		}
	case WindowCustom:
		if bounds == nil || bounds.Start.IsZero() || bounds.End.IsZero() {
			return nil, 0, fmt.Errorf("%w: custom window requires start and end", ErrInvalidWindow)
		}
		start, end := bounds.Start, bounds.End
		inWindow = func(t time.Time) bool {
			return !t.Before(start) && !t.After(end)
		}
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidWindow, typ)
	}

	kept = make([]ledger.Event, 0, len(events))
	for _, evt := range events {
		t, terr := evt.Time()
		if terr != nil {
			log.Printf("report: excluding event %d: %v", evt.ID, terr)
			metrics.InvalidRecords.Inc()
			excluded++
			continue
		}
		if inWindow(t) {
			kept = append(kept, evt)
		}
	}
	sortByTimestamp(kept)
	return kept, excluded, nil
}

// WindowBounds resolves the effective [start, end] of a window type at
// the given instant, for report payloads.
func WindowBounds(typ WindowType, now time.Time, bounds *Bounds) (time.Time, time.Time) {
	switch typ {
	case WindowDaily:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), now
	case WindowWeekly:
		return now.AddDate(0, 0, -weeklyDays), now
	case WindowMonthly:
		return now.AddDate(0, 0, -monthlyDays), now
	case WindowCustom:
		if bounds != nil {
			return bounds.Start, bounds.End
		}
	}
	return time.Time{}, now
}

// sortByTimestamp orders events by parsed timestamp, stable so that
// insertion order breaks ties. All events here parsed successfully.
func sortByTimestamp(events []ledger.Event) {
	type keyed struct {
		t   time.Time
		evt ledger.Event
	}
	ks := make([]keyed, len(events))
	for i, evt := range events {
		t, _ := evt.Time()
		ks[i] = keyed{t: t, evt: evt}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].t.Before(ks[j].t) })
	for i := range ks {
		events[i] = ks[i].evt
	}
}
