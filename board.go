package gtfsrt

import (
	"fmt"
	"time"

	"transitboard.dev/gtfsrt/model"
)

// NoService is shown where a board slot has no upcoming departure.
const NoService = "-"

// MonitoredStop is one configured departure board row: a tuple plus
// its display attributes.
type MonitoredStop struct {
	Name        string
	RouteID     string
	DirectionID string
	StopID      string
	ServiceType string
	Icon        string
	Limit       int
}

// BoardEntry is the rendered state of one monitored stop: the next
// departure plus a preview of the ones behind it.
type BoardEntry struct {
	Name        string
	RouteID     string
	DirectionID string
	StopID      string
	ServiceType string
	Icon        string

	// Minutes until the next departure, truncated. -1 when no
	// departure is known.
	DueIn int
	// Wall clock of the next departure as "15:04", or NoService.
	DueAt string
	// Vehicle position of the next departure, when the feed
	// reported one.
	Position *model.Position
	Realtime bool

	// Upcoming departures past the first, up to the stop's limit,
	// as "15:04" strings. Slots without service hold NoService.
	Next []string
}

// Board renders snapshots for a fixed set of monitored stops.
type Board struct {
	stops []MonitoredStop
}

// NewBoard registers every monitored stop on the registry and returns
// a board that can render snapshots for them.
func NewBoard(stops []MonitoredStop, registry *Registry) *Board {
	normalized := make([]MonitoredStop, len(stops))
	for i, stop := range stops {
		if stop.DirectionID == "" {
			stop.DirectionID = "0"
		}
		if stop.Limit < 1 {
			stop.Limit = 1
		}
		registry.Register(stop.RouteID, stop.DirectionID, stop.StopID, stop.Limit)
		normalized[i] = stop
	}
	return &Board{stops: normalized}
}

// Entries renders one entry per monitored stop, in configuration
// order.
func (b *Board) Entries(snapshot Snapshot, now time.Time) []BoardEntry {
	entries := make([]BoardEntry, 0, len(b.stops))
	for _, stop := range b.stops {
		entries = append(entries, renderEntry(stop, snapshot, now))
	}
	return entries
}

func renderEntry(stop MonitoredStop, snapshot Snapshot, now time.Time) BoardEntry {
	entry := BoardEntry{
		Name:        stop.Name,
		RouteID:     stop.RouteID,
		DirectionID: stop.DirectionID,
		StopID:      stop.StopID,
		ServiceType: stop.ServiceType,
		Icon:        stop.Icon,
		DueIn:       -1,
		DueAt:       NoService,
	}

	departures := snapshot.Departures(stop.RouteID, stop.DirectionID, stop.StopID)
	if len(departures) > 0 {
		first := departures[0]
		entry.DueIn = int(first.ArrivalTime.Sub(now).Minutes())
		entry.DueAt = first.ArrivalTime.Format("15:04")
		entry.Position = first.Position
		entry.Realtime = first.Realtime
	}

	if stop.Limit > 1 {
		entry.Next = make([]string, stop.Limit-1)
		for i := range entry.Next {
			if i+1 < len(departures) {
				entry.Next[i] = departures[i+1].ArrivalTime.Format("15:04")
			} else {
				entry.Next[i] = NoService
			}
		}
	}

	return entry
}

// String renders a one-line summary, for the CLI board view.
func (e BoardEntry) String() string {
	source := "scheduled"
	if e.Realtime {
		source = "realtime"
	}
	if e.DueIn < 0 {
		return fmt.Sprintf("%s (%s %s, stop %s): no service", e.Name, e.ServiceType, e.RouteID, e.StopID)
	}
	return fmt.Sprintf("%s (%s %s, stop %s): due in %d min at %s (%s)",
		e.Name, e.ServiceType, e.RouteID, e.StopID, e.DueIn, e.DueAt, source)
}
