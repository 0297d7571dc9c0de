package parse

import (
	"fmt"
	"strconv"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"

	"transitboard.dev/gtfsrt/model"
)

// The default direction when a trip descriptor carries none. Feeds
// may encode direction_id as an integer; it is coerced to a string
// key throughout.
const DefaultDirectionID = "0"

type StopTimeUpdate struct {
	StopID       string
	StopSequence uint32

	// Unix timestamps, feed-local. Zero when the field is absent.
	// Per GTFS convention either may be the only populated one.
	Arrival   int64
	Departure int64
}

type TripUpdate struct {
	TripID      string
	RouteID     string
	DirectionID string
	StopTimes   []StopTimeUpdate
}

// DecodeFeed unmarshals a binary GTFS-RT FeedMessage.
func DecodeFeed(buf []byte) (*gtfsproto.FeedMessage, error) {
	feed := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(buf, feed); err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}
	return feed, nil
}

// TripUpdates extracts all trip updates from a feed. Entities lacking
// the trip_update field are ignored.
func TripUpdates(feed *gtfsproto.FeedMessage) []*TripUpdate {
	updates := []*TripUpdate{}

	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		trip := tu.GetTrip()

		update := &TripUpdate{
			TripID:      trip.GetTripId(),
			RouteID:     trip.GetRouteId(),
			DirectionID: DefaultDirectionID,
		}
		if trip.DirectionId != nil {
			update.DirectionID = strconv.FormatUint(uint64(trip.GetDirectionId()), 10)
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			update.StopTimes = append(update.StopTimes, StopTimeUpdate{
				StopID:       stu.GetStopId(),
				StopSequence: stu.GetStopSequence(),
				Arrival:      stu.GetArrival().GetTime(),
				Departure:    stu.GetDeparture().GetTime(),
			})
		}

		updates = append(updates, update)
	}

	return updates
}

// VehiclePositions builds a trip_id to position map from a vehicle
// position feed. Vehicles without an active trip are skipped (not in
// service).
func VehiclePositions(feed *gtfsproto.FeedMessage) map[string]*model.Position {
	positions := map[string]*model.Position{}

	for _, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil {
			continue
		}

		tripID := vehicle.GetTrip().GetTripId()
		if tripID == "" {
			continue
		}

		pos := vehicle.GetPosition()
		if pos == nil {
			continue
		}

		positions[tripID] = &model.Position{
			Latitude:  float64(pos.GetLatitude()),
			Longitude: float64(pos.GetLongitude()),
		}
	}

	return positions
}
