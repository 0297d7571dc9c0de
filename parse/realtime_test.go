package parse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"transitboard.dev/gtfsrt/parse"
	"transitboard.dev/gtfsrt/testutil"
)

func TestDecodeFeed(t *testing.T) {
	arrival := time.Unix(1700000000, 0)
	buf := testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
		{
			TripID:  "t1",
			RouteID: "R1",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "s1", StopSequence: 1, ArrivalTime: arrival},
			},
		},
	})

	feed, err := parse.DecodeFeed(buf)
	require.NoError(t, err)
	assert.Len(t, feed.GetEntity(), 1)

	_, err = parse.DecodeFeed([]byte("garbage that is not protobuf"))
	assert.Error(t, err)
}

func TestTripUpdates(t *testing.T) {
	arrival := time.Unix(1700000000, 0)
	departure := time.Unix(1700000100, 0)

	buf := testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
		{
			TripID:  "t1",
			RouteID: "R1",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "s1", StopSequence: 1, ArrivalTime: arrival},
				{StopID: "s2", StopSequence: 2, DepartureTime: departure},
			},
		},
		{
			TripID:      "t2",
			RouteID:     "R2",
			DirectionID: proto.Uint32(1),
		},
	})

	feed, err := parse.DecodeFeed(buf)
	require.NoError(t, err)

	updates := parse.TripUpdates(feed)
	require.Len(t, updates, 2)

	// Absent direction_id falls back to "0".
	assert.Equal(t, "t1", updates[0].TripID)
	assert.Equal(t, "R1", updates[0].RouteID)
	assert.Equal(t, "0", updates[0].DirectionID)

	require.Len(t, updates[0].StopTimes, 2)
	assert.Equal(t, arrival.Unix(), updates[0].StopTimes[0].Arrival)
	assert.Equal(t, int64(0), updates[0].StopTimes[0].Departure)
	assert.Equal(t, departure.Unix(), updates[0].StopTimes[1].Departure)

	// Explicit direction_id is coerced to its decimal string form.
	assert.Equal(t, "1", updates[1].DirectionID)
}

func TestVehiclePositions(t *testing.T) {
	buf := testutil.BuildVehiclePositionFeed(t, []testutil.VehiclePosition{
		{TripID: "t1", Latitude: 40.7, Longitude: -74.0},
		{TripID: "t2", Latitude: 40.8, Longitude: -73.9},
		// No active trip: not in service, skipped.
		{TripID: "", Latitude: 1, Longitude: 2},
	})

	feed, err := parse.DecodeFeed(buf)
	require.NoError(t, err)

	positions := parse.VehiclePositions(feed)
	require.Len(t, positions, 2)
	assert.InDelta(t, 40.7, positions["t1"].Latitude, 0.001)
	assert.InDelta(t, -74.0, positions["t1"].Longitude, 0.001)
}

func TestTripUpdatesIgnoresOtherEntities(t *testing.T) {
	// A vehicle position feed contains no trip updates at all.
	buf := testutil.BuildVehiclePositionFeed(t, []testutil.VehiclePosition{
		{TripID: "t1", Latitude: 1, Longitude: 2},
	})

	feed, err := parse.DecodeFeed(buf)
	require.NoError(t, err)

	assert.Len(t, parse.TripUpdates(feed), 0)
}
