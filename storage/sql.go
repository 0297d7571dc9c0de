package storage

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"transitboard.dev/gtfsrt/model"
)

// ScheduleWriter and ScheduleReader over database/sql, shared by the
// SQLite and Postgres backends. The placeholder func formats the i:th
// query parameter (1-based), since the two dialects disagree on
// placeholder syntax.

type sqlScheduleWriter struct {
	db          *sql.DB
	placeholder func(int) string

	stopTimeTx   *sql.Tx
	stopTimeStmt *sql.Stmt
}

func (w *sqlScheduleWriter) params(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = w.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

func (w *sqlScheduleWriter) WriteRoute(route *model.Route) error {
	_, err := w.db.Exec(fmt.Sprintf(`
INSERT INTO routes (id, agency_id, short_name, long_name, "desc", type, color, text_color)
VALUES (%s)`, w.params(8)),
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		route.Type,
		route.Color,
		route.TextColor,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteStop(stop *model.Stop) error {
	_, err := w.db.Exec(fmt.Sprintf(`
INSERT INTO stops (id, code, name, "desc", lat, lon)
VALUES (%s)`, w.params(6)),
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteTrip(trip *model.Trip) error {
	_, err := w.db.Exec(fmt.Sprintf(`
INSERT INTO trips (id, route_id, service_id, headsign, short_name, direction_id)
VALUES (%s)`, w.params(6)),
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.DirectionID,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteCalendar(cal *model.Calendar) error {
	_, err := w.db.Exec(fmt.Sprintf(`
INSERT INTO calendar (service_id, start_date, end_date, weekday)
VALUES (%s)`, w.params(4)),
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		cal.Weekday,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteCalendarDate(caldate *model.CalendarDate) error {
	_, err := w.db.Exec(fmt.Sprintf(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (%s)`, w.params(3)),
		caldate.ServiceID,
		caldate.Date,
		caldate.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) BeginStopTimes() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`
INSERT INTO stop_times (trip_id, stop_id, headsign, stop_sequence, arrival, departure)
VALUES (%s)`, w.params(6)))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}

	w.stopTimeTx = tx
	w.stopTimeStmt = stmt

	return nil
}

func (w *sqlScheduleWriter) WriteStopTime(stopTime *model.StopTime) error {
	if w.stopTimeStmt == nil {
		return fmt.Errorf("WriteStopTime before BeginStopTimes")
	}

	_, err := w.stopTimeStmt.Exec(
		stopTime.TripID,
		stopTime.StopID,
		stopTime.Headsign,
		stopTime.StopSequence,
		stopTime.Arrival,
		stopTime.Departure,
	)
	if err != nil {
		return fmt.Errorf("inserting stop time: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) EndStopTimes() error {
	if w.stopTimeTx == nil {
		return fmt.Errorf("EndStopTimes before BeginStopTimes")
	}

	w.stopTimeStmt.Close()
	if err := w.stopTimeTx.Commit(); err != nil {
		return fmt.Errorf("committing stop times: %w", err)
	}

	w.stopTimeTx = nil
	w.stopTimeStmt = nil

	return nil
}

func (w *sqlScheduleWriter) Close() error {
	if w.stopTimeTx != nil {
		w.stopTimeStmt.Close()
		w.stopTimeTx.Rollback()
		w.stopTimeTx = nil
		w.stopTimeStmt = nil
	}
	return nil
}

type sqlScheduleReader struct {
	db          *sql.DB
	placeholder func(int) string
}

func (r *sqlScheduleReader) Routes() ([]*model.Route, error) {
	rows, err := r.db.Query(`
SELECT id, agency_id, short_name, long_name, "desc", type, color, text_color
FROM routes`)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []*model.Route{}
	for rows.Next() {
		route := &model.Route{}
		err = rows.Scan(
			&route.ID,
			&route.AgencyID,
			&route.ShortName,
			&route.LongName,
			&route.Desc,
			&route.Type,
			&route.Color,
			&route.TextColor,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, route)
	}

	return routes, rows.Err()
}

func (r *sqlScheduleReader) Stops() ([]*model.Stop, error) {
	rows, err := r.db.Query(`
SELECT id, code, name, "desc", lat, lon
FROM stops`)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []*model.Stop{}
	for rows.Next() {
		stop := &model.Stop{}
		err = rows.Scan(&stop.ID, &stop.Code, &stop.Name, &stop.Desc, &stop.Lat, &stop.Lon)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, stop)
	}

	return stops, rows.Err()
}

func scanTrips(rows *sql.Rows) ([]*model.Trip, error) {
	trips := []*model.Trip{}
	for rows.Next() {
		trip := &model.Trip{}
		err := rows.Scan(
			&trip.ID,
			&trip.RouteID,
			&trip.ServiceID,
			&trip.Headsign,
			&trip.ShortName,
			&trip.DirectionID,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

func (r *sqlScheduleReader) Trips() ([]*model.Trip, error) {
	rows, err := r.db.Query(`
SELECT id, route_id, service_id, headsign, short_name, direction_id
FROM trips`)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func (r *sqlScheduleReader) TripsByRouteDirection(routeID string, directionID int8) ([]*model.Trip, error) {
	rows, err := r.db.Query(fmt.Sprintf(`
SELECT id, route_id, service_id, headsign, short_name, direction_id
FROM trips
WHERE route_id = %s AND direction_id = %s`, r.placeholder(1), r.placeholder(2)),
		routeID, directionID)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func (r *sqlScheduleReader) Calendars() ([]*model.Calendar, error) {
	rows, err := r.db.Query(`
SELECT service_id, start_date, end_date, weekday
FROM calendar`)
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	defer rows.Close()

	cals := []*model.Calendar{}
	for rows.Next() {
		cal := &model.Calendar{}
		err = rows.Scan(&cal.ServiceID, &cal.StartDate, &cal.EndDate, &cal.Weekday)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		cals = append(cals, cal)
	}

	return cals, rows.Err()
}

func (r *sqlScheduleReader) CalendarDates() ([]*model.CalendarDate, error) {
	rows, err := r.db.Query(`
SELECT service_id, date, exception_type
FROM calendar_dates
ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying calendar dates: %w", err)
	}
	defer rows.Close()

	cds := []*model.CalendarDate{}
	for rows.Next() {
		cd := &model.CalendarDate{}
		err = rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar date: %w", err)
		}
		cds = append(cds, cd)
	}

	return cds, rows.Err()
}

func (r *sqlScheduleReader) StopTimesByTrip(tripID string) ([]*model.StopTime, error) {
	rows, err := r.db.Query(fmt.Sprintf(`
SELECT trip_id, stop_id, headsign, stop_sequence, arrival, departure
FROM stop_times
WHERE trip_id = %s
ORDER BY stop_sequence`, r.placeholder(1)), tripID)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	sts := []*model.StopTime{}
	for rows.Next() {
		st := &model.StopTime{}
		err = rows.Scan(&st.TripID, &st.StopID, &st.Headsign, &st.StopSequence, &st.Arrival, &st.Departure)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		sts = append(sts, st)
	}

	return sts, rows.Err()
}

func (r *sqlScheduleReader) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	rows, err := r.db.Query(fmt.Sprintf(`
SELECT service_id
FROM calendar
WHERE weekday & %s != 0 AND start_date <= %s AND end_date >= %s`,
		r.placeholder(1), r.placeholder(2), r.placeholder(3)),
		1<<parsedDate.Weekday(), date, date)
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	defer rows.Close()

	services := map[string]bool{}
	for rows.Next() {
		var serviceID string
		if err := rows.Scan(&serviceID); err != nil {
			return nil, fmt.Errorf("scanning service: %w", err)
		}
		services[serviceID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Exceptions in file order, last write wins per service.
	rows, err = r.db.Query(fmt.Sprintf(`
SELECT service_id, exception_type
FROM calendar_dates
WHERE date = %s
ORDER BY seq`, r.placeholder(1)), date)
	if err != nil {
		return nil, fmt.Errorf("querying calendar dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var serviceID string
		var exceptionType model.ExceptionType
		if err := rows.Scan(&serviceID, &exceptionType); err != nil {
			return nil, fmt.Errorf("scanning exception: %w", err)
		}
		switch exceptionType {
		case model.ServiceAdded:
			services[serviceID] = true
		case model.ServiceRemoved:
			services[serviceID] = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
