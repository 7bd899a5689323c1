package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendledger/internal/ledger"
	"attendledger/internal/metrics"
)

// ErrUnknownKind rejects analytics kinds outside the supported set.
var ErrUnknownKind = errors.New("unknown analytics kind")

// Analytics kinds.
const (
	KindAttendance   = "attendance"
	KindUsers        = "users"
	KindProductivity = "productivity"
	KindTrends       = "trends"
)

// EventSource is the ledger surface the service reads from.
type EventSource interface {
	FetchAll(ctx context.Context) ([]ledger.Event, error)
}

// Window is a computed-on-demand report over a time range. Never
// persisted; recomputed per request.
type Window struct {
	Type     WindowType     `json:"type"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Records  []ledger.Event `json:"records"`
	SignIns  int            `json:"signIns"`
	SignOuts int            `json:"signOuts"`
	Excluded int            `json:"excludedRecords,omitempty"`
}

// Options narrow an analytics request. The zero value means the weekly
// window and the default peak-hours depth.
type Options struct {
	Window WindowType `json:"window,omitempty"`
	TopN   int        `json:"topN,omitempty"`
}

const defaultPeakHoursTopN = 5

func (o Options) withDefaults() Options {
	if o.Window == "" {
		o.Window = WindowWeekly
	}
	if o.TopN <= 0 {
		o.TopN = defaultPeakHoursTopN
	}
	return o
}

func (o Options) cacheKey(kind string) string {
	return fmt.Sprintf("%s|%s|%d", kind, o.Window, o.TopN)
}

// Snapshot is a derived analytics aggregate. Fields are populated per
// kind; callers tolerate data as old as the cache TTL.
type Snapshot struct {
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generatedAt"`

	Hourly    map[int]int             `json:"hourly,omitempty"`
	Daily     map[string]ActionCounts `json:"daily,omitempty"`
	Users     map[string]ActionCounts `json:"users,omitempty"`
	PeakHours []HourCount             `json:"peakHours,omitempty"`
	Anomalies []Anomaly               `json:"anomalies,omitempty"`

	AttendanceRate    int `json:"attendanceRate,omitempty"`
	ProductivityScore int `json:"productivityScore,omitempty"`
	ConsistencyScore  int `json:"consistencyScore,omitempty"`

	ExcludedRecords int `json:"excludedRecords,omitempty"`
}

// Service computes window reports and analytics snapshots over the
// ledger. All computation is pure over the fetched events; the TTL
// cache is the only shared state.
type Service struct {
	source           EventSource
	cache            *Cache
	expectedUsers    int
	anomalyThreshold float64
	now              func() time.Time
}

// NewService wires the engine to its event source and cache.
func NewService(source EventSource, cache *Cache, expectedUsers int, anomalyThreshold float64) *Service {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	if anomalyThreshold <= 0 {
		anomalyThreshold = DefaultAnomalyThreshold
	}
	return &Service{
		source:           source,
		cache:            cache,
		expectedUsers:    expectedUsers,
		anomalyThreshold: anomalyThreshold,
		now:              time.Now,
	}
}

// Cache exposes the snapshot cache, e.g. to clear it after a restore.
func (s *Service) Cache() *Cache { return s.cache }

// WindowReport fetches the ledger and computes the report for the given
// window. Custom windows need explicit bounds; unknown types fail with
// ErrInvalidWindow.
func (s *Service) WindowReport(ctx context.Context, typ WindowType, bounds *Bounds) (Window, error) {
	events, err := s.source.FetchAll(ctx)
	if err != nil {
		return Window{}, err
	}
	now := s.now()
	records, excluded, err := FilterWindow(events, typ, now, bounds)
	if err != nil {
		return Window{}, err
	}
	start, end := WindowBounds(typ, now, bounds)
	w := Window{
		Type:     typ,
		Start:    start,
		End:      end,
		Records:  records,
		Excluded: excluded,
	}
	for _, evt := range records {
		switch evt.Action {
		case ledger.ActionSignIn:
			w.SignIns++
		case ledger.ActionSignOut:
			w.SignOuts++
		}
	}
	metrics.ReportsServed.WithLabelValues(string(typ)).Inc()
	return w, nil
}

// Analytics returns the snapshot for kind, serving from the TTL cache
// when fresh. Unknown kinds fail with ErrUnknownKind.
func (s *Service) Analytics(ctx context.Context, kind string, opts Options) (*Snapshot, error) {
	switch kind {
	case KindAttendance, KindUsers, KindProductivity, KindTrends:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	opts = opts.withDefaults()

	key := opts.cacheKey(kind)
	if snap := s.cache.Get(key); snap != nil {
		metrics.CacheHits.Inc()
		metrics.AnalyticsServed.WithLabelValues(kind).Inc()
		return snap, nil
	}
	metrics.CacheMisses.Inc()

	events, err := s.source.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.compute(kind, opts, events)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, snap)
	metrics.AnalyticsServed.WithLabelValues(kind).Inc()
	return snap, nil
}

// compute is the pure part: same events and options, same snapshot.
func (s *Service) compute(kind string, opts Options, events []ledger.Event) (*Snapshot, error) {
	now := s.now()
	snap := &Snapshot{Kind: kind, GeneratedAt: now}
	switch kind {
	case KindAttendance:
		windowed, excluded, ferr := FilterWindow(events, opts.Window, now, nil)
		if ferr != nil {
			return nil, ferr
		}
		hourly, _ := BreakdownByHour(windowed)
		daily, _ := BreakdownByDay(windowed)
		snap.Hourly = hourly
		snap.Daily = daily
		snap.PeakHours = PeakHours(hourly, opts.TopN)
		snap.ExcludedRecords = excluded
		snap.AttendanceRate = AttendanceRate(events, now, s.expectedUsers)

	case KindUsers:
		windowed, excluded, ferr := FilterWindow(events, opts.Window, now, nil)
		if ferr != nil {
			return nil, ferr
		}
		snap.Users = BreakdownByUser(windowed)
		snap.ExcludedRecords = excluded

	case KindProductivity:
		today, _, _ := FilterWindow(events, WindowDaily, now, nil)
		snap.ProductivityScore = ProductivityScore(len(today))
		snap.ConsistencyScore = ConsistencyScore(events, now)
		snap.AttendanceRate = AttendanceRate(events, now, s.expectedUsers)

	case KindTrends:
		monthly, skipped, ferr := FilterWindow(events, WindowMonthly, now, nil)
		if ferr != nil {
			return nil, ferr
		}
		daily, _ := BreakdownByDay(monthly)
		hourly, _ := BreakdownByHour(monthly)
		anomalies, badSignIns := DetectAnomalies(monthly, s.anomalyThreshold)
		snap.Daily = daily
		snap.PeakHours = PeakHours(hourly, opts.TopN)
		snap.Anomalies = anomalies
		snap.ExcludedRecords = skipped + badSignIns
	}
	return snap, nil
}
