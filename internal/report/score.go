package report

import (
	"math"
	"time"

	"attendledger/internal/ledger"
)

// Scoring heuristics for the dashboard KPIs. The formulas are
// presentation-level and documented rather than guaranteed; more
// activity never lowers a score.

// AttendanceRate is the percentage of the expected headcount with any
// activity today: round(uniqueActiveUsersToday / expectedUsers * 100).
// expectedUsers comes from configuration, not from the user collection.
func AttendanceRate(events []ledger.Event, now time.Time, expectedUsers int) int {
	if expectedUsers <= 0 {
		return 0
	}
	today, _, err := FilterWindow(events, WindowDaily, now, nil)
	if err != nil {
		return 0
	}
	seen := make(map[int64]struct{})
	for _, evt := range today {
		seen[evt.UserID] = struct{}{}
	}
	return int(math.Round(float64(len(seen)) / float64(expectedUsers) * 100))
}

// ProductivityScore is min(75 + min(todayEventCount*2, 25), 100).
func ProductivityScore(todayEventCount int) int {
	bonus := todayEventCount * 2
	if bonus > 25 {
		bonus = 25
	}
	score := 75 + bonus
	if score > 100 {
		score = 100
	}
	return score
}

// ConsistencyScore is round(distinctDaysWithActivityInLast7 / 7 * 100).
func ConsistencyScore(events []ledger.Event, now time.Time) int {
	recent, _, err := FilterWindow(events, WindowWeekly, now, nil)
	if err != nil {
		return 0
	}
	days := make(map[string]struct{})
	for _, evt := range recent {
		t, terr := evt.Time()
		if terr != nil {
			continue
		}
		days[t.Format("2006-01-02")] = struct{}{}
	}
	return int(math.Round(float64(len(days)) / float64(weeklyDays) * 100))
}
