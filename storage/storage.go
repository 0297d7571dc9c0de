package storage

import (
	"errors"

	"transitboard.dev/gtfsrt/model"
)

var ErrFeedNotFound = errors.New("feed not found")

// Storage holds parsed GTFS schedule archives, keyed by feed ID. A
// feed is written exactly once (per load) and read-only afterwards.
//
// The memory backend is the default. The SQLite and Postgres backends
// let a parsed archive survive restarts, or be shared between
// processes, so the 4 week cache window doesn't force a re-download
// on every boot.
type Storage interface {
	// Gets a writer for the feed with the given ID. Any previously
	// stored data for the ID is discarded.
	GetWriter(feedID string) (ScheduleWriter, error)

	// Gets a reader for the feed with the given ID.
	GetReader(feedID string) (ScheduleReader, error)
}

// Writes GTFS records for a single feed.
//
// As stop_times.txt tends to be very large, BeginStopTimes() and
// EndStopTimes() bracket all calls to WriteStopTime(), allowing
// transactions/batching/whathaveyou.
type ScheduleWriter interface {
	WriteRoute(route *model.Route) error
	WriteStop(stop *model.Stop) error
	WriteTrip(trip *model.Trip) error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	BeginStopTimes() error
	WriteStopTime(stopTime *model.StopTime) error
	EndStopTimes() error
	Close() error
}

type ScheduleReader interface {
	Routes() ([]*model.Route, error)
	Stops() ([]*model.Stop, error)
	Trips() ([]*model.Trip, error)
	Calendars() ([]*model.Calendar, error)
	CalendarDates() ([]*model.CalendarDate, error)

	// Trips serving the given route and direction.
	TripsByRouteDirection(routeID string, directionID int8) ([]*model.Trip, error)

	// Stop times for a trip, ordered by stop_sequence ascending.
	StopTimesByTrip(tripID string) ([]*model.StopTime, error)

	// Service IDs for all services active on the given date. Date
	// is given as YYYYMMDD. Base calendar rows are considered
	// first, then calendar_dates exceptions for exactly that date,
	// in file order, last write wins per service.
	ActiveServices(date string) ([]string, error)
}
