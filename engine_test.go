package gtfsrt_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	gtfsrt "transitboard.dev/gtfsrt"
	"transitboard.dev/gtfsrt/testutil"
)

func serveFeed(t *testing.T, buf []byte) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEngineUpdate(t *testing.T) {
	soon := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	later := time.Now().Add(15 * time.Minute).Truncate(time.Second)

	tripServer := serveFeed(t, testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
		{
			TripID:  "t1",
			RouteID: "66-ABC",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "stop1", StopSequence: 1, ArrivalTime: later},
				{StopID: "stop1", StopSequence: 2, ArrivalTime: soon},
				// Unsubscribed stop.
				{StopID: "stop9", StopSequence: 3, ArrivalTime: soon},
			},
		},
		{
			// Subscribed route, explicit direction 1.
			TripID:      "t2",
			RouteID:     "7",
			DirectionID: proto.Uint32(1),
			StopUpdates: []testutil.StopUpdate{
				// Departure-only update: the departure time
				// stands in for the arrival.
				{StopID: "stop2", StopSequence: 1, DepartureTime: soon},
			},
		},
		{
			// Unsubscribed route: skipped wholesale.
			TripID:  "t3",
			RouteID: "99",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "stop1", StopSequence: 1, ArrivalTime: soon},
			},
		},
	}))

	vehicleServer := serveFeed(t, testutil.BuildVehiclePositionFeed(t, []testutil.VehiclePosition{
		{TripID: "t1", Latitude: 53.3, Longitude: -6.2},
	}))

	registry := gtfsrt.NewRegistry()
	registry.Register("66", "0", "stop1", 3)
	registry.Register("7", "1", "stop2", 1)

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		registry,
		testutil.Logger(),
	)
	engine.TripUpdateURL = tripServer.URL
	engine.VehiclePositionURL = vehicleServer.URL
	engine.RouteDelimiter = "-"

	snapshot, err := engine.Update(context.Background())
	require.NoError(t, err)

	// Route "66-ABC" normalizes to "66". Both stop1 updates made it
	// in, sorted ascending, each carrying t1's position.
	deps := snapshot.Departures("66", "0", "stop1")
	require.Len(t, deps, 2)
	assert.True(t, deps[0].ArrivalTime.Before(deps[1].ArrivalTime))
	for _, dep := range deps {
		assert.True(t, dep.Realtime)
		require.NotNil(t, dep.Position)
		assert.InDelta(t, 53.3, dep.Position.Latitude, 0.001)
		assert.InDelta(t, -6.2, dep.Position.Longitude, 0.001)
	}

	// The direction 1 subscription picked up the departure-only
	// update, with no position reported for t2.
	deps = snapshot.Departures("7", "1", "stop2")
	require.Len(t, deps, 1)
	assert.Nil(t, deps[0].Position)

	// Nothing leaked in for the unsubscribed combinations.
	assert.Len(t, snapshot.Departures("99", "0", "stop1"), 0)
	assert.Len(t, snapshot.Departures("66", "0", "stop9"), 0)
}

func TestEngineRawRouteSubscription(t *testing.T) {
	soon := time.Now().Add(5 * time.Minute)

	tripServer := serveFeed(t, testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
		{
			TripID:  "t1",
			RouteID: "66-ABC",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "stop1", StopSequence: 1, ArrivalTime: soon},
			},
		},
	}))

	// Subscribed under the raw feed form, delimiter configured.
	registry := gtfsrt.NewRegistry()
	registry.Register("66-ABC", "0", "stop1", 1)

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		registry,
		testutil.Logger(),
	)
	engine.TripUpdateURL = tripServer.URL
	engine.RouteDelimiter = "-"

	snapshot, err := engine.Update(context.Background())
	require.NoError(t, err)

	// The departure lands under the raw form the consumer used,
	// not the normalized one.
	require.Len(t, snapshot.Departures("66-ABC", "0", "stop1"), 1)
	assert.Len(t, snapshot.Departures("66", "0", "stop1"), 0)
}

func TestEngineNoVehicleFeed(t *testing.T) {
	soon := time.Now().Add(5 * time.Minute)

	tripServer := serveFeed(t, testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
		{
			TripID:  "t1",
			RouteID: "66",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "stop1", StopSequence: 1, ArrivalTime: soon},
			},
		},
	}))

	registry := gtfsrt.NewRegistry()
	registry.Register("66", "0", "stop1", 1)

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		registry,
		testutil.Logger(),
	)
	engine.TripUpdateURL = tripServer.URL

	snapshot, err := engine.Update(context.Background())
	require.NoError(t, err)

	deps := snapshot.Departures("66", "0", "stop1")
	require.Len(t, deps, 1)
	assert.Nil(t, deps[0].Position)
}

func TestEngineFeedFailureFailsCycle(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	registry := gtfsrt.NewRegistry()
	registry.Register("66", "0", "stop1", 1)

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		registry,
		testutil.Logger(),
	)
	engine.TripUpdateURL = broken.URL

	_, err := engine.Update(context.Background())
	require.Error(t, err)

	var feedErr *gtfsrt.FeedError
	require.ErrorAs(t, err, &feedErr)
	assert.Equal(t, gtfsrt.FeedErrorStatus, feedErr.Kind)
}

func TestEngineVehicleFeedFailureFailsCycle(t *testing.T) {
	tripServer := serveFeed(t, testutil.BuildTripUpdateFeed(t, nil))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		gtfsrt.NewRegistry(),
		testutil.Logger(),
	)
	engine.TripUpdateURL = tripServer.URL
	engine.VehiclePositionURL = broken.URL

	_, err := engine.Update(context.Background())
	assert.Error(t, err)
}
