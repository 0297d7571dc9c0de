package gtfsrt

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"transitboard.dev/gtfsrt/model"
	"transitboard.dev/gtfsrt/parse"
)

// A static departure conflicts with (and loses to) a realtime one
// when their arrival times are within this window.
const mergeConflictWindow = 300 * time.Second

// Departure is one predicted or scheduled arrival at a stop. Position
// points into the cycle's vehicle position snapshot; departures on
// the same trip share it.
type Departure struct {
	ArrivalTime time.Time
	Position    *model.Position
	Realtime    bool
}

// Snapshot is the authoritative view of one reconciliation cycle:
// every monitored tuple's upcoming departures, sorted ascending by
// arrival time. It is replaced wholesale each cycle and read-only to
// consumers.
type Snapshot map[Tuple][]Departure

func (s Snapshot) Departures(route, direction, stop string) []Departure {
	return s[Tuple{RouteID: route, DirectionID: direction, StopID: stop}]
}

// Engine reconciles the realtime trip update feed, the optional
// vehicle position feed and the optional static schedule into a
// Snapshot, once per poll cycle.
type Engine struct {
	TripUpdateURL      string
	VehiclePositionURL string

	// If set, raw feed route IDs are truncated at the first
	// occurrence of this delimiter before use.
	RouteDelimiter string

	// When enabled and a tuple has fewer realtime departures than
	// its subscription limit, the schedule store fills the gap.
	StaticFallback bool

	feed     *FeedClient
	schedule *ScheduleStore
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires the engine. The schedule store may be nil when no
// static archive is configured.
func NewEngine(
	feed *FeedClient,
	schedule *ScheduleStore,
	registry *Registry,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		feed:     feed,
		schedule: schedule,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// normalizeRouteID strips everything from the first occurrence of the
// delimiter on. A raw ID equal to the delimiter itself stays
// unchanged.
func normalizeRouteID(raw, delimiter string) string {
	if delimiter == "" || raw == delimiter {
		return raw
	}
	id, _, _ := strings.Cut(raw, delimiter)
	return id
}

// Update runs one reconciliation cycle and returns the new
// snapshot. Any feed failure fails the whole cycle; the caller keeps
// its previous snapshot.
func (e *Engine) Update(ctx context.Context) (Snapshot, error) {
	tripFeed, err := e.feed.Fetch(ctx, e.TripUpdateURL, "trip updates")
	if err != nil {
		return nil, err
	}

	positions := map[string]*model.Position{}
	if e.VehiclePositionURL != "" {
		vehicleFeed, err := e.feed.Fetch(ctx, e.VehiclePositionURL, "vehicle positions")
		if err != nil {
			return nil, err
		}
		positions = parse.VehiclePositions(vehicleFeed)
	}

	now := e.now()
	snapshot := Snapshot{}

	for _, update := range parse.TripUpdates(tripFeed) {
		routeID := normalizeRouteID(update.RouteID, e.RouteDelimiter)

		// Only subscribed routes are worth any work. The raw
		// ID is checked too, for feeds where consumers
		// subscribe to the undelimited form.
		if !e.registry.HasRoute(update.RouteID) && !e.registry.HasRoute(routeID) {
			continue
		}

		for _, stu := range update.StopTimes {
			// A consumer may subscribe under the normalized or
			// the raw feed form; the departure is keyed under
			// whichever form they used.
			subRoute := routeID
			if !e.registry.IsSubscribed(subRoute, update.DirectionID, stu.StopID) {
				subRoute = update.RouteID
				if !e.registry.IsSubscribed(subRoute, update.DirectionID, stu.StopID) {
					continue
				}
			}

			// Arrival time preferred; departure when the
			// feed only populates that.
			ts := stu.Arrival
			if ts == 0 {
				ts = stu.Departure
			}

			// GTFS-RT timestamps are feed-local, so the
			// comparison uses local wall clock time.
			arrival := time.Unix(ts, 0).In(now.Location())
			if arrival.Before(now) {
				continue
			}

			key := Tuple{RouteID: subRoute, DirectionID: update.DirectionID, StopID: stu.StopID}
			snapshot[key] = append(snapshot[key], Departure{
				ArrivalTime: arrival,
				Position:    positions[update.TripID],
				Realtime:    true,
			})
		}
	}

	if e.StaticFallback && e.schedule != nil {
		for _, sub := range e.registry.All() {
			realtime := snapshot[sub.Tuple]
			if len(realtime) >= sub.Limit {
				continue
			}

			scheduled := e.schedule.Departures(sub.RouteID, sub.DirectionID, sub.StopID, now)
			if merged := mergeDepartures(realtime, scheduled); len(merged) > 0 {
				snapshot[sub.Tuple] = merged
			}
		}
	}

	for _, departures := range snapshot {
		sort.Slice(departures, func(i, j int) bool {
			return departures[i].ArrivalTime.Before(departures[j].ArrivalTime)
		})
	}

	e.logger.Debug("cycle complete", "tuples", len(snapshot))

	return snapshot, nil
}

// mergeDepartures folds scheduled departures into a realtime list.
// Realtime entries are never removed; a scheduled entry is dropped
// when a realtime arrival falls within the conflict window of it.
func mergeDepartures(realtime, scheduled []Departure) []Departure {
	if len(scheduled) == 0 {
		return realtime
	}

	merged := make([]Departure, len(realtime), len(realtime)+len(scheduled))
	copy(merged, realtime)

	for _, sched := range scheduled {
		conflict := false
		for _, rt := range realtime {
			diff := rt.ArrivalTime.Sub(sched.ArrivalTime)
			if diff < 0 {
				diff = -diff
			}
			if diff < mergeConflictWindow {
				conflict = true
				break
			}
		}
		if !conflict {
			merged = append(merged, sched)
		}
	}

	return merged
}
