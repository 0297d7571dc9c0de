package storage

import (
	"sort"
	"time"

	"transitboard.dev/gtfsrt/model"
)

// In memory implementation of Storage below. This is the default
// backend: a schedule snapshot lives exactly as long as the process.

type MemoryStorage struct {
	Feeds map[string]*MemoryScheduleFeed
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds: map[string]*MemoryScheduleFeed{},
	}
}

func (s *MemoryStorage) GetWriter(feedID string) (ScheduleWriter, error) {
	f := &MemoryScheduleFeed{
		routes:          map[string]*model.Route{},
		stops:           map[string]*model.Stop{},
		trips:           map[string]*model.Trip{},
		calendar:        []*model.Calendar{},
		calendarDates:   []*model.CalendarDate{},
		tripsByRoute:    map[string][]*model.Trip{},
		stopTimesByTrip: map[string][]*model.StopTime{},
	}

	s.Feeds[feedID] = f

	return f, nil
}

func (s *MemoryStorage) GetReader(feedID string) (ScheduleReader, error) {
	f, ok := s.Feeds[feedID]
	if !ok {
		return nil, ErrFeedNotFound
	}
	return f, nil
}

type MemoryScheduleFeed struct {
	routes          map[string]*model.Route
	stops           map[string]*model.Stop
	trips           map[string]*model.Trip
	calendar        []*model.Calendar
	calendarDates   []*model.CalendarDate
	tripsByRoute    map[string][]*model.Trip
	stopTimesByTrip map[string][]*model.StopTime
}

func (f *MemoryScheduleFeed) WriteRoute(route *model.Route) error {
	f.routes[route.ID] = route
	return nil
}

func (f *MemoryScheduleFeed) WriteStop(stop *model.Stop) error {
	f.stops[stop.ID] = stop
	return nil
}

func (f *MemoryScheduleFeed) WriteTrip(trip *model.Trip) error {
	f.trips[trip.ID] = trip
	f.tripsByRoute[trip.RouteID] = append(f.tripsByRoute[trip.RouteID], trip)
	return nil
}

func (f *MemoryScheduleFeed) WriteCalendar(cal *model.Calendar) error {
	f.calendar = append(f.calendar, cal)
	return nil
}

func (f *MemoryScheduleFeed) WriteCalendarDate(caldate *model.CalendarDate) error {
	f.calendarDates = append(f.calendarDates, caldate)
	return nil
}

func (f *MemoryScheduleFeed) BeginStopTimes() error {
	return nil
}

func (f *MemoryScheduleFeed) WriteStopTime(stopTime *model.StopTime) error {
	f.stopTimesByTrip[stopTime.TripID] = append(f.stopTimesByTrip[stopTime.TripID], stopTime)
	return nil
}

func (f *MemoryScheduleFeed) EndStopTimes() error {
	for _, sts := range f.stopTimesByTrip {
		sort.SliceStable(sts, func(i, j int) bool {
			return sts[i].StopSequence < sts[j].StopSequence
		})
	}
	return nil
}

func (f *MemoryScheduleFeed) Close() error {
	return nil
}

func (f *MemoryScheduleFeed) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	for _, v := range f.routes {
		routes = append(routes, v)
	}
	return routes, nil
}

func (f *MemoryScheduleFeed) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	for _, v := range f.stops {
		stops = append(stops, v)
	}
	return stops, nil
}

func (f *MemoryScheduleFeed) Trips() ([]*model.Trip, error) {
	trips := []*model.Trip{}
	for _, v := range f.trips {
		trips = append(trips, v)
	}
	return trips, nil
}

func (f *MemoryScheduleFeed) Calendars() ([]*model.Calendar, error) {
	return f.calendar, nil
}

func (f *MemoryScheduleFeed) CalendarDates() ([]*model.CalendarDate, error) {
	return f.calendarDates, nil
}

func (f *MemoryScheduleFeed) TripsByRouteDirection(routeID string, directionID int8) ([]*model.Trip, error) {
	trips := []*model.Trip{}
	for _, trip := range f.tripsByRoute[routeID] {
		if trip.DirectionID == directionID {
			trips = append(trips, trip)
		}
	}
	return trips, nil
}

func (f *MemoryScheduleFeed) StopTimesByTrip(tripID string) ([]*model.StopTime, error) {
	return f.stopTimesByTrip[tripID], nil
}

func (f *MemoryScheduleFeed) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, err
	}

	services := map[string]bool{}

	for _, cal := range f.calendar {
		if cal.Weekday&(1<<parsedDate.Weekday()) == 0 {
			continue
		}
		if cal.StartDate > date {
			continue
		}
		if cal.EndDate < date {
			continue
		}
		services[cal.ServiceID] = true
	}

	// Exceptions are applied after the base calendar pass, in file
	// order. Last write wins per service.
	for _, cd := range f.calendarDates {
		if cd.Date != date {
			continue
		}
		switch cd.ExceptionType {
		case model.ServiceAdded:
			services[cd.ServiceID] = true
		case model.ServiceRemoved:
			services[cd.ServiceID] = false
		}
	}

	active := []string{}
	for serviceID, ok := range services {
		if ok {
			active = append(active, serviceID)
		}
	}
	sort.Strings(active)

	return active, nil
}
