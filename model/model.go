package model

import (
	"strconv"
	"time"
)

// Holds the GTFS record types shared by parse, storage and the engine.

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      int
	Color     string
	TextColor string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
}

type Stop struct {
	ID   string
	Code string
	Name string
	Desc string
	Lat  float64
	Lon  float64
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type ExceptionType int8

const (
	ServiceAdded   ExceptionType = 1
	ServiceRemoved ExceptionType = 2
)

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

// StopTime's Arrival and Departure are "HHMMSS" clock strings. GTFS
// allows hours beyond 24 for service running past midnight, so these
// are offsets from the start of the service day rather than wall
// clock times.
type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string
	Departure    string
}

func clockDuration(hhmmss string) time.Duration {
	h, _ := strconv.Atoi(hhmmss[0:2])
	m, _ := strconv.Atoi(hhmmss[2:4])
	s, _ := strconv.Atoi(hhmmss[4:6])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

func (st *StopTime) ArrivalTime() time.Duration {
	return clockDuration(st.Arrival)
}

func (st *StopTime) DepartureTime() time.Duration {
	return clockDuration(st.Departure)
}

// Position of a vehicle, as reported by a vehicle position feed.
type Position struct {
	Latitude  float64
	Longitude float64
}
