package report

import (
	"context"
	"testing"
	"time"

	"attendledger/internal/ledger"
)

// now is a fixed reference instant so window math is deterministic.
var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func evt(id, userID int64, username, action string, at time.Time) ledger.Event {
	return ledger.Event{
		ID:        id,
		UserID:    userID,
		Username:  username,
		Action:    action,
		Timestamp: at.Format(time.RFC3339),
	}
}

// ============================================================
// FilterWindow
// ============================================================

func TestFilterWindowDaily(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-2*time.Hour)),
		evt(2, 1, "u1", ledger.ActionSignOut, testNow.AddDate(0, 0, -1)),
	}
	kept, excluded, err := FilterWindow(events, WindowDaily, testNow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if excluded != 0 {
		t.Fatalf("expected 0 excluded, got %d", excluded)
	}
	if len(kept) != 1 || kept[0].ID != 1 {
		t.Fatalf("expected only event 1, got %+v", kept)
	}
}

func TestFilterWindowWeeklyBoundary(t *testing.T) {
	exactlySeven := evt(1, 1, "u1", ledger.ActionSignIn, testNow.AddDate(0, 0, -7))
	eightDays := evt(2, 1, "u1", ledger.ActionSignIn, testNow.AddDate(0, 0, -8))
	kept, _, err := FilterWindow([]ledger.Event{exactlySeven, eightDays}, WindowWeekly, testNow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 1 || kept[0].ID != 1 {
		t.Fatalf("expected inclusive 7-day bound to keep only event 1, got %+v", kept)
	}
}

func TestFilterWindowIdempotent(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-1*time.Hour)),
		evt(2, 2, "u2", ledger.ActionSignIn, testNow.AddDate(0, 0, -3)),
		evt(3, 3, "u3", ledger.ActionSignIn, testNow.AddDate(0, 0, -20)),
	}
	once, _, err := FilterWindow(events, WindowWeekly, testNow, nil)
	if err != nil {
		t.Fatal(err)
	}
	twice, _, err := FilterWindow(once, WindowWeekly, testNow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(once) != len(twice) {
		t.Fatalf("filter not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Fatalf("filter not idempotent at %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestFilterWindowCustomRequiresBounds(t *testing.T) {
	if _, _, err := FilterWindow(nil, WindowCustom, testNow, nil); err == nil {
		t.Fatal("expected error for custom window without bounds")
	}
	bounds := &Bounds{Start: testNow.AddDate(0, 0, -1)}
	if _, _, err := FilterWindow(nil, WindowCustom, testNow, bounds); err == nil {
		t.Fatal("expected error for custom window missing end")
	}
}

func TestFilterWindowCustomInclusive(t *testing.T) {
	start := testNow.AddDate(0, 0, -2)
	end := testNow.AddDate(0, 0, -1)
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, start),
		evt(2, 1, "u1", ledger.ActionSignIn, end),
		evt(3, 1, "u1", ledger.ActionSignIn, end.Add(time.Second)),
	}
	kept, _, err := FilterWindow(events, WindowCustom, testNow, &Bounds{Start: start, End: end})
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 2 {
		t.Fatalf("expected inclusive bounds to keep 2 events, got %d", len(kept))
	}
}

func TestFilterWindowUnknownType(t *testing.T) {
	if _, _, err := FilterWindow(nil, "fortnightly", testNow, nil); err == nil {
		t.Fatal("expected error for unknown window type")
	}
}

func TestFilterWindowSortsByTimestamp(t *testing.T) {
	// Insertion order deliberately out of time order.
	events := []ledger.Event{
		evt(2, 1, "u1", ledger.ActionSignOut, testNow.Add(-1*time.Hour)),
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-2*time.Hour)),
	}
	kept, _, err := FilterWindow(events, WindowDaily, testNow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if kept[0].ID != 1 || kept[1].ID != 2 {
		t.Fatalf("expected timestamp order, got %+v", kept)
	}
}

func TestFilterWindowSkipsMalformed(t *testing.T) {
	events := make([]ledger.Event, 0, 100)
	for i := 0; i < 99; i++ {
		events = append(events, evt(int64(i+1), 1, "u1", ledger.ActionSignIn, testNow.Add(-time.Minute)))
	}
	events = append(events, ledger.Event{ID: 100, UserID: 1, Username: "u1", Action: ledger.ActionSignIn, Timestamp: "notadate"})
	kept, excluded, err := FilterWindow(events, WindowDaily, testNow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 99 {
		t.Fatalf("expected 99 kept, got %d", len(kept))
	}
	if excluded != 1 {
		t.Fatalf("expected 1 excluded, got %d", excluded)
	}
}

// ============================================================
// Breakdowns
// ============================================================

func TestBreakdownScenario(t *testing.T) {
	day := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, day),
		evt(2, 1, "u1", ledger.ActionSignOut, day.Add(5*time.Minute)),
		evt(3, 2, "u2", ledger.ActionSignIn, day.Add(10*time.Minute)),
	}

	hourly, _ := BreakdownByHour(events)
	if len(hourly) != 1 || hourly[9] != 3 {
		t.Fatalf("expected {9: 3}, got %v", hourly)
	}

	users := BreakdownByUser(events)
	if got := users["u1"]; got.SignIns != 1 || got.SignOuts != 1 {
		t.Fatalf("u1: expected 1/1, got %+v", got)
	}
	if got := users["u2"]; got.SignIns != 1 || got.SignOuts != 0 {
		t.Fatalf("u2: expected 1/0, got %+v", got)
	}
}

func TestBreakdownByDayCountsEveryEventOnce(t *testing.T) {
	var events []ledger.Event
	for i := 0; i < 50; i++ {
		action := ledger.ActionSignIn
		if i%3 == 0 {
			action = ledger.ActionSignOut
		}
		events = append(events, evt(int64(i+1), int64(i%5), "u", action, testNow.AddDate(0, 0, -(i%9))))
	}
	daily, excluded := BreakdownByDay(events)
	total := excluded
	for _, c := range daily {
		total += c.SignIns + c.SignOuts
	}
	if total != len(events) {
		t.Fatalf("expected counts to sum to %d, got %d", len(events), total)
	}
}

func TestBreakdownByHourSparse(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)),
	}
	hourly, _ := BreakdownByHour(events)
	if _, ok := hourly[10]; ok {
		t.Fatal("zero-count hours must be absent, not zero-filled")
	}
}

func TestBreakdownByUserSurvivesRename(t *testing.T) {
	day := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	events := []ledger.Event{
		evt(1, 7, "alice", ledger.ActionSignIn, day),
		evt(2, 7, "alice-m", ledger.ActionSignOut, day.Add(time.Hour)),
	}
	users := BreakdownByUser(events)
	got, ok := users["alice-m"]
	if !ok {
		t.Fatalf("expected tally under latest name, got %v", users)
	}
	if got.SignIns != 1 || got.SignOuts != 1 {
		t.Fatalf("rename fractured the tally: %+v", got)
	}
}

// ============================================================
// Peak hours
// ============================================================

func TestPeakHoursTopK(t *testing.T) {
	hourly := map[int]int{9: 10, 14: 7, 17: 7, 2: 1, 11: 3}
	top := PeakHours(hourly, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	// Every returned count must be >= every unreturned count.
	returned := map[int]bool{}
	for i, hc := range top {
		returned[hc.Hour] = true
		if i > 0 && hc.Count > top[i-1].Count {
			t.Fatalf("not sorted descending: %+v", top)
		}
	}
	for hour, count := range hourly {
		if !returned[hour] && count > top[len(top)-1].Count {
			t.Fatalf("hour %d (count %d) should have ranked above %+v", hour, count, top)
		}
	}
	// Tie at count 7 breaks toward the lower hour.
	if top[1].Hour != 14 || top[2].Hour != 17 {
		t.Fatalf("expected tie broken by ascending hour, got %+v", top)
	}
}

func TestPeakHoursFewerThanN(t *testing.T) {
	top := PeakHours(map[int]int{9: 2}, 5)
	if len(top) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(top))
	}
}

// ============================================================
// Anomalies
// ============================================================

func TestDetectAnomaliesFlagsOutlier(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	hours := []int{9, 9, 9, 9, 2}
	var events []ledger.Event
	for i, h := range hours {
		events = append(events, evt(int64(i+1), int64(i+1), "u", ledger.ActionSignIn, day.Add(time.Duration(h)*time.Hour)))
	}
	anomalies, _ := DetectAnomalies(events, 3)
	if len(anomalies) != 1 {
		t.Fatalf("expected exactly 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	if anomalies[0].Hour != 2 {
		t.Fatalf("expected the 02:00 sign-in flagged, got %+v", anomalies[0])
	}
	if anomalies[0].Message == "" {
		t.Fatal("anomaly must carry a message")
	}
}

func TestDetectAnomaliesIgnoresSignOuts(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	events := []ledger.Event{
		evt(1, 1, "u", ledger.ActionSignIn, day.Add(9*time.Hour)),
		evt(2, 1, "u", ledger.ActionSignOut, day.Add(23*time.Hour)),
	}
	anomalies, _ := DetectAnomalies(events, 3)
	if len(anomalies) != 0 {
		t.Fatalf("sign-outs must not be flagged: %+v", anomalies)
	}
}

func TestDetectAnomaliesEmpty(t *testing.T) {
	anomalies, _ := DetectAnomalies(nil, 3)
	if anomalies != nil {
		t.Fatalf("expected no anomalies, got %+v", anomalies)
	}
}

// ============================================================
// Scores
// ============================================================

func TestAttendanceRate(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-time.Hour)),
		evt(2, 1, "u1", ledger.ActionSignOut, testNow.Add(-30*time.Minute)),
		evt(3, 2, "u2", ledger.ActionSignIn, testNow.Add(-time.Hour)),
		evt(4, 3, "u3", ledger.ActionSignIn, testNow.AddDate(0, 0, -2)), // not today
	}
	if got := AttendanceRate(events, testNow, 4); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := AttendanceRate(events, testNow, 0); got != 0 {
		t.Fatalf("expected 0 for zero expected users, got %d", got)
	}
}

func TestProductivityScore(t *testing.T) {
	cases := []struct {
		count, want int
	}{
		{0, 75},
		{5, 85},
		{13, 100},
		{1000, 100},
	}
	for _, tc := range cases {
		if got := ProductivityScore(tc.count); got != tc.want {
			t.Fatalf("count %d: expected %d, got %d", tc.count, tc.want, got)
		}
	}
	// More activity never lowers the score.
	prev := 0
	for c := 0; c < 30; c++ {
		s := ProductivityScore(c)
		if s < prev {
			t.Fatalf("score dropped from %d to %d at count %d", prev, s, c)
		}
		prev = s
	}
}

func TestConsistencyScore(t *testing.T) {
	var events []ledger.Event
	for d := 0; d < 3; d++ {
		events = append(events, evt(int64(d+1), 1, "u1", ledger.ActionSignIn, testNow.AddDate(0, 0, -d)))
	}
	if got := ConsistencyScore(events, testNow); got != 43 {
		t.Fatalf("expected round(3/7*100)=43, got %d", got)
	}
}

// ============================================================
// Service
// ============================================================

type stubSource struct {
	events []ledger.Event
	calls  int
	err    error
}

func (s *stubSource) FetchAll(context.Context) ([]ledger.Event, error) {
	s.calls++
	return s.events, s.err
}

func newTestService(t *testing.T, events []ledger.Event) (*Service, *stubSource) {
	t.Helper()
	src := &stubSource{events: events}
	svc := NewService(src, NewCache(DefaultCacheTTL), 10, DefaultAnomalyThreshold)
	svc.now = func() time.Time { return testNow }
	return svc, src
}

func TestWindowReportCounts(t *testing.T) {
	svc, _ := newTestService(t, []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-2*time.Hour)),
		evt(2, 1, "u1", ledger.ActionSignOut, testNow.Add(-time.Hour)),
		evt(3, 2, "u2", ledger.ActionSignIn, testNow.AddDate(0, 0, -3)),
	})
	w, err := svc.WindowReport(context.Background(), WindowDaily, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.SignIns != 1 || w.SignOuts != 1 {
		t.Fatalf("expected 1/1, got %d/%d", w.SignIns, w.SignOuts)
	}
	if len(w.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(w.Records))
	}
	if w.Type != WindowDaily {
		t.Fatalf("expected daily, got %s", w.Type)
	}
}

func TestWindowReportInvalidWindow(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.WindowReport(context.Background(), "quarterly", nil); err == nil {
		t.Fatal("expected invalid window error")
	}
}

func TestAnalyticsUnknownKind(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.Analytics(context.Background(), "velocity", Options{}); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestAnalyticsCacheServesSecondRequest(t *testing.T) {
	svc, src := newTestService(t, []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-time.Hour)),
	})
	first, err := svc.Analytics(context.Background(), KindAttendance, Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Analytics(context.Background(), KindAttendance, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", src.calls)
	}
	if first != second {
		t.Fatal("expected the cached snapshot back")
	}
}

func TestAnalyticsCacheKeyedByOptions(t *testing.T) {
	svc, src := newTestService(t, []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-time.Hour)),
	})
	if _, err := svc.Analytics(context.Background(), KindAttendance, Options{TopN: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Analytics(context.Background(), KindAttendance, Options{TopN: 8}); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Fatalf("different options must not share a cache entry; fetches=%d", src.calls)
	}
}

func TestAnalyticsKinds(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-2*time.Hour)),
		evt(2, 1, "u1", ledger.ActionSignOut, testNow.Add(-time.Hour)),
		evt(3, 2, "u2", ledger.ActionSignIn, testNow.AddDate(0, 0, -1)),
	}
	for _, kind := range []string{KindAttendance, KindUsers, KindProductivity, KindTrends} {
		svc, _ := newTestService(t, events)
		snap, err := svc.Analytics(context.Background(), kind, Options{})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if snap.Kind != kind {
			t.Fatalf("expected kind %s, got %s", kind, snap.Kind)
		}
	}
}

func TestAnalyticsMalformedRecordReported(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-time.Hour)),
		{ID: 2, UserID: 1, Username: "u1", Action: ledger.ActionSignIn, Timestamp: "garbage"},
	}
	svc, _ := newTestService(t, events)
	snap, err := svc.Analytics(context.Background(), KindAttendance, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if snap.ExcludedRecords != 1 {
		t.Fatalf("expected 1 excluded record, got %d", snap.ExcludedRecords)
	}
	if snap.Hourly[testNow.Add(-time.Hour).Hour()] != 1 {
		t.Fatalf("good record missing from breakdown: %v", snap.Hourly)
	}
}

func TestComputeDeterministic(t *testing.T) {
	events := []ledger.Event{
		evt(1, 1, "u1", ledger.ActionSignIn, testNow.Add(-2*time.Hour)),
		evt(2, 2, "u2", ledger.ActionSignIn, testNow.AddDate(0, 0, -2)),
	}
	svc, _ := newTestService(t, events)
	a, err := svc.compute(KindAttendance, Options{}.withDefaults(), events)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.compute(KindAttendance, Options{}.withDefaults(), events)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Hourly) != len(b.Hourly) || a.AttendanceRate != b.AttendanceRate {
		t.Fatalf("same inputs produced different snapshots: %+v vs %+v", a, b)
	}
	for h, c := range a.Hourly {
		if b.Hourly[h] != c {
			t.Fatalf("hourly mismatch at %d", h)
		}
	}
}
