package gtfsrt

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"transitboard.dev/gtfsrt/downloader"
	"transitboard.dev/gtfsrt/parse"
	"transitboard.dev/gtfsrt/storage"
)

const (
	DefaultScheduleTimeout = 30 * time.Second
	DefaultScheduleMaxSize = 800 << 20 // 800 MB

	// A loaded schedule is considered fresh for this long.
	// Staleness is advisory: nothing reloads automatically, the
	// host decides when to call Load again.
	ScheduleCacheValidity = 4 * 7 * 24 * time.Hour

	// At most this many scheduled departures are returned per
	// (route, direction, stop).
	maxScheduledDepartures = 10
)

// ScheduleLoadError wraps any failure during a schedule load. A
// failed load aborts that attempt only; realtime operation continues
// and schedule queries keep returning nothing until a load succeeds.
type ScheduleLoadError struct {
	Stage string // download|parse|store
	Err   error
}

func (e *ScheduleLoadError) Error() string {
	return fmt.Sprintf("loading schedule (%s): %v", e.Stage, e.Err)
}

func (e *ScheduleLoadError) Unwrap() error {
	return e.Err
}

// ScheduleStore downloads, unpacks and indexes a static GTFS archive,
// and answers scheduled-departure queries against the most recently
// loaded snapshot.
//
// Load is safe to call concurrently with queries and with itself: a
// snapshot is swapped in atomically only after a fully successful
// load, so readers never observe partial state.
type ScheduleStore struct {
	URL        string
	Timeout    time.Duration
	MaxSize    int
	Downloader downloader.Downloader
	Storage    storage.Storage

	logger *slog.Logger
	now    func() time.Time

	loads    singleflight.Group
	snapshot atomic.Pointer[Schedule]
}

func NewScheduleStore(url string, logger *slog.Logger) *ScheduleStore {
	return &ScheduleStore{
		URL:        url,
		Timeout:    DefaultScheduleTimeout,
		MaxSize:    DefaultScheduleMaxSize,
		Downloader: downloader.NewMemoryDownloader(),
		Storage:    storage.NewMemoryStorage(),
		logger:     logger,
		now:        time.Now,
	}
}

// Load fetches and parses the archive, then swaps the new snapshot
// in. Concurrent calls coalesce into a single download.
func (s *ScheduleStore) Load(ctx context.Context) error {
	_, err, _ := s.loads.Do("load", func() (interface{}, error) {
		return nil, s.load(ctx)
	})
	return err
}

func (s *ScheduleStore) load(ctx context.Context) error {
	s.logger.Info("loading schedule archive", "url", s.URL)

	body, err := s.Downloader.Get(ctx, s.URL, nil, downloader.GetOptions{
		Timeout: s.Timeout,
		MaxSize: s.MaxSize,
	})
	if err != nil {
		return &ScheduleLoadError{Stage: "download", Err: err}
	}

	feedID := fmt.Sprintf("%x", sha256.Sum256(body))

	writer, err := s.Storage.GetWriter(feedID)
	if err != nil {
		return &ScheduleLoadError{Stage: "store", Err: err}
	}

	if err := parse.ParseSchedule(writer, body, s.logger); err != nil {
		return &ScheduleLoadError{Stage: "parse", Err: err}
	}

	reader, err := s.Storage.GetReader(feedID)
	if err != nil {
		return &ScheduleLoadError{Stage: "store", Err: err}
	}

	snap := newSchedule(reader, s.now())
	s.snapshot.Store(snap)

	s.logger.Info("schedule archive loaded", "feed", feedID[:12])

	return nil
}

// LoadAsync starts a load on a background goroutine, so realtime
// polling never waits on an archive download. A failed load is
// logged; queries keep returning nothing until a later load
// succeeds.
func (s *ScheduleStore) LoadAsync(ctx context.Context) {
	go func() {
		if err := s.Load(ctx); err != nil {
			s.logger.Warn("background schedule load failed", "error", err)
		}
	}()
}

// Snapshot returns the most recently loaded schedule, or nil if no
// load has succeeded yet.
func (s *ScheduleStore) Snapshot() *Schedule {
	return s.snapshot.Load()
}

// Fresh reports whether a snapshot exists and is within the cache
// validity window.
func (s *ScheduleStore) Fresh() bool {
	snap := s.snapshot.Load()
	return snap != nil && s.now().Sub(snap.loadedAt) < ScheduleCacheValidity
}

// Departures returns upcoming scheduled departures for a (route,
// direction, stop). Never blocks on loading: without a snapshot it
// returns nil immediately.
func (s *ScheduleStore) Departures(route, direction, stop string, now time.Time) []Departure {
	snap := s.snapshot.Load()
	if snap == nil {
		s.logger.Debug("schedule not loaded yet, skipping", "route", route, "stop", stop)
		return nil
	}

	deps, err := snap.Departures(route, direction, stop, now)
	if err != nil {
		s.logger.Error("schedule query failed", "route", route, "stop", stop, "error", err)
		return nil
	}
	return deps
}

// Schedule is one immutable loaded archive. Scheduled departures per
// tuple are computed lazily on first query and memoized until the
// snapshot is replaced.
type Schedule struct {
	reader   storage.ScheduleReader
	loadedAt time.Time

	group singleflight.Group
	mu    sync.Mutex
	cache map[Tuple][]Departure
}

func newSchedule(reader storage.ScheduleReader, loadedAt time.Time) *Schedule {
	return &Schedule{
		reader:   reader,
		loadedAt: loadedAt,
		cache:    map[Tuple][]Departure{},
	}
}

func (s *Schedule) Departures(route, direction, stop string, now time.Time) ([]Departure, error) {
	key := Tuple{RouteID: route, DirectionID: direction, StopID: stop}

	s.mu.Lock()
	all, ok := s.cache[key]
	s.mu.Unlock()

	if !ok {
		// Coalesce concurrent first-time computation for the
		// same tuple.
		v, err, _ := s.group.Do(route+"\x00"+direction+"\x00"+stop, func() (interface{}, error) {
			deps, err := s.scheduledDepartures(route, direction, stop, now)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.cache[key] = deps
			s.mu.Unlock()
			return deps, nil
		})
		if err != nil {
			return nil, err
		}
		all = v.([]Departure)
	}

	// The cache holds the tuple's full service day; filter to
	// future-only at query time.
	deps := []Departure{}
	for _, dep := range all {
		if dep.ArrivalTime.After(now) {
			deps = append(deps, dep)
		}
	}

	sort.Slice(deps, func(i, j int) bool {
		return deps[i].ArrivalTime.Before(deps[j].ArrivalTime)
	})

	if len(deps) > maxScheduledDepartures {
		deps = deps[:maxScheduledDepartures]
	}

	return deps, nil
}

// Computes all of today's scheduled departures for a tuple.
func (s *Schedule) scheduledDepartures(route, direction, stop string, now time.Time) ([]Departure, error) {
	dir, err := strconv.Atoi(direction)
	if err != nil {
		// Trips only carry direction 0 or 1; a non-numeric
		// direction can't match anything.
		return []Departure{}, nil
	}

	active, err := s.reader.ActiveServices(now.Format("20060102"))
	if err != nil {
		return nil, fmt.Errorf("getting active services: %w", err)
	}
	activeSet := map[string]bool{}
	for _, serviceID := range active {
		activeSet[serviceID] = true
	}

	trips, err := s.reader.TripsByRouteDirection(route, int8(dir))
	if err != nil {
		return nil, fmt.Errorf("getting trips: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	departures := []Departure{}
	for _, trip := range trips {
		if !activeSet[trip.ServiceID] {
			continue
		}

		stopTimes, err := s.reader.StopTimesByTrip(trip.ID)
		if err != nil {
			return nil, fmt.Errorf("getting stop times: %w", err)
		}

		for _, st := range stopTimes {
			if st.StopID != stop {
				continue
			}

			// Departure time preferred, arrival as
			// fallback. Either may be blank on
			// non-timepoint rows.
			var offset time.Duration
			switch {
			case st.Departure != "":
				offset = st.DepartureTime()
			case st.Arrival != "":
				offset = st.ArrivalTime()
			default:
				continue
			}

			// GTFS clock times exceeding 24:00:00 denote
			// post-midnight service and roll into the
			// next calendar day.
			departures = append(departures, Departure{
				ArrivalTime: midnight.Add(offset),
			})
		}
	}

	return departures, nil
}
