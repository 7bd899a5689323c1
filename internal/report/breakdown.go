package report

import (
	"fmt"
	"math"
	"sort"

	"attendledger/internal/ledger"
)

// ActionCounts tallies events split by action.
type ActionCounts struct {
	SignIns  int `json:"signIns"`
	SignOuts int `json:"signOuts"`
}

func (c *ActionCounts) add(action string) {
	switch action {
	case ledger.ActionSignIn:
		c.SignIns++
	case ledger.ActionSignOut:
		c.SignOuts++
	}
}

// BreakdownByHour maps hour-of-day (0-23, from each event's own local
// timestamp) to event count. Hours with no events are absent; callers
// wanting all 24 hours zero-fill themselves. Events with unparseable
// timestamps are excluded and counted.
func BreakdownByHour(events []ledger.Event) (map[int]int, int) {
	hourly := make(map[int]int)
	excluded := 0
	for _, evt := range events {
		t, err := evt.Time()
		if err != nil {
			excluded++
			continue
		}
		hourly[t.Hour()]++
	}
	return hourly, excluded
}

// BreakdownByDay maps calendar-date strings (YYYY-MM-DD) to per-action
// counters. Every parseable event is counted exactly once.
func BreakdownByDay(events []ledger.Event) (map[string]ActionCounts, int) {
	daily := make(map[string]ActionCounts)
	excluded := 0
	for _, evt := range events {
		t, err := evt.Time()
		if err != nil {
			excluded++
			continue
		}
		day := t.Format("2006-01-02")
		c := daily[day]
		c.add(evt.Action)
		daily[day] = c
	}
	return daily, excluded
}

// BreakdownByUser maps a display name to per-action counters. Events are
// grouped by the stable user id, and the name shown is the one captured
// on the user's latest event, so a rename does not fracture the tally.
func BreakdownByUser(events []ledger.Event) map[string]ActionCounts {
	type userTally struct {
		name   string
		counts ActionCounts
	}
	byID := make(map[int64]*userTally)
	order := make([]int64, 0)
	for _, evt := range events {
		u, ok := byID[evt.UserID]
		if !ok {
			u = &userTally{}
			byID[evt.UserID] = u
			order = append(order, evt.UserID)
		}
		if evt.Username != "" {
			u.name = evt.Username
		}
		u.counts.add(evt.Action)
	}

	out := make(map[string]ActionCounts, len(byID))
	for _, id := range order {
		u := byID[id]
		name := u.name
		if name == "" {
			name = fmt.Sprintf("user-%d", id)
		}
		c := out[name]
		c.SignIns += u.counts.SignIns
		c.SignOuts += u.counts.SignOuts
		out[name] = c
	}
	return out
}

// HourCount is one entry of a peak-hours ranking.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// PeakHours returns the topN busiest hours, descending by count, ties
// broken by the lower hour first so the ranking is deterministic.
func PeakHours(hourly map[int]int, topN int) []HourCount {
	ranked := make([]HourCount, 0, len(hourly))
	for hour, count := range hourly {
		ranked = append(ranked, HourCount{Hour: hour, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Hour < ranked[j].Hour
	})
	if topN < 0 {
		topN = 0
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// Anomaly flags a sign-in far outside the usual hours.
type Anomaly struct {
	EventID  int64  `json:"eventId"`
	Username string `json:"username"`
	Hour     int    `json:"hour"`
	Message  string `json:"message"`
}

// DefaultAnomalyThreshold is the allowed deviation, in hours, from the
// mean sign-in hour before an event is flagged.
const DefaultAnomalyThreshold = 3.0

// DetectAnomalies flags sign-ins whose hour deviates from the mean
// sign-in hour by more than threshold. A plain outlier heuristic, no
// accuracy guarantees. Unparseable timestamps are excluded and counted.
func DetectAnomalies(events []ledger.Event, threshold float64) ([]Anomaly, int) {
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	type signIn struct {
		evt  ledger.Event
		hour int
	}
	var signIns []signIn
	excluded := 0
	for _, evt := range events {
		if evt.Action != ledger.ActionSignIn {
			continue
		}
		t, err := evt.Time()
		if err != nil {
			excluded++
			continue
		}
		signIns = append(signIns, signIn{evt: evt, hour: t.Hour()})
	}
	if len(signIns) == 0 {
		return nil, excluded
	}

	sum := 0
	for _, s := range signIns {
		sum += s.hour
	}
	mean := float64(sum) / float64(len(signIns))

	var anomalies []Anomaly
	for _, s := range signIns {
		deviation := math.Abs(float64(s.hour) - mean)
		if deviation > threshold {
			anomalies = append(anomalies, Anomaly{
				EventID:  s.evt.ID,
				Username: s.evt.Username,
				Hour:     s.hour,
				Message: fmt.Sprintf("%s signed in at %02d:00, %.1f hours from the usual %02d:00",
					s.evt.Username, s.hour, deviation, int(math.Round(mean))),
			})
		}
	}
	return anomalies, excluded
}
