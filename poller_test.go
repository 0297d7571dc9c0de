package gtfsrt_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gtfsrt "transitboard.dev/gtfsrt"
	"transitboard.dev/gtfsrt/testutil"
)

func TestPollerGatesOnInterval(t *testing.T) {
	soon := time.Now().Add(5 * time.Minute)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
			{
				TripID:  "t1",
				RouteID: "66",
				StopUpdates: []testutil.StopUpdate{
					{StopID: "stop1", StopSequence: 1, ArrivalTime: soon},
				},
			},
		}))
	}))
	defer server.Close()

	registry := gtfsrt.NewRegistry()
	registry.Register("66", "0", "stop1", 1)

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		registry,
		testutil.Logger(),
	)
	engine.TripUpdateURL = server.URL

	poller := gtfsrt.NewPoller(engine, time.Hour, testutil.Logger())

	first := poller.Poll(context.Background())
	require.Len(t, first.Departures("66", "0", "stop1"), 1)
	assert.Equal(t, 1, requests)

	// Within the interval: no new fetch, same snapshot.
	second := poller.Poll(context.Background())
	assert.Equal(t, 1, requests)
	assert.Equal(t, first.Departures("66", "0", "stop1"), second.Departures("66", "0", "stop1"))
}

func TestPollerRetainsSnapshotOnFailure(t *testing.T) {
	soon := time.Now().Add(5 * time.Minute)

	var fail bool
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
			{
				TripID:  "t1",
				RouteID: "66",
				StopUpdates: []testutil.StopUpdate{
					{StopID: "stop1", StopSequence: 1, ArrivalTime: soon},
				},
			},
		}))
	}))
	defer server.Close()

	registry := gtfsrt.NewRegistry()
	registry.Register("66", "0", "stop1", 1)

	engine := gtfsrt.NewEngine(
		gtfsrt.NewFeedClient("", "", testutil.Logger()),
		nil,
		registry,
		testutil.Logger(),
	)
	engine.TripUpdateURL = server.URL

	// Zero interval: every Poll runs a cycle.
	poller := gtfsrt.NewPoller(engine, time.Nanosecond, testutil.Logger())

	snapshot := poller.Poll(context.Background())
	require.Len(t, snapshot.Departures("66", "0", "stop1"), 1)

	// A failing cycle keeps the previous snapshot.
	fail = true
	snapshot = poller.Poll(context.Background())
	assert.Len(t, snapshot.Departures("66", "0", "stop1"), 1)
	assert.Equal(t, 2, requests)

	// Snapshot() never triggers a cycle.
	assert.Len(t, poller.Snapshot().Departures("66", "0", "stop1"), 1)
	assert.Equal(t, 2, requests)
}
