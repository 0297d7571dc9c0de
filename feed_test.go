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

func TestFeedClientFetch(t *testing.T) {
	arrival := time.Now().Add(5 * time.Minute)
	buf := testutil.BuildTripUpdateFeed(t, []testutil.TripUpdate{
		{
			TripID:  "t1",
			RouteID: "R1",
			StopUpdates: []testutil.StopUpdate{
				{StopID: "s1", StopSequence: 1, ArrivalTime: arrival},
			},
		},
	})

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write(buf)
	}))
	defer server.Close()

	client := gtfsrt.NewFeedClient("secret", "", testutil.Logger())

	feed, err := client.Fetch(context.Background(), server.URL, "trip updates")
	require.NoError(t, err)
	assert.Len(t, feed.GetEntity(), 1)

	// The API key rides on the default header when none is named.
	assert.Equal(t, "secret", gotAuth)
}

func TestFeedClientCustomHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		w.Write(testutil.BuildTripUpdateFeed(t, nil))
	}))
	defer server.Close()

	client := gtfsrt.NewFeedClient("secret", "x-api-key", testutil.Logger())

	_, err := client.Fetch(context.Background(), server.URL, "trip updates")
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestFeedClientErrors(t *testing.T) {
	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer statusServer.Close()

	garbageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not protobuf, not even close"))
	}))
	defer garbageServer.Close()

	deadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadServer.Close()

	client := gtfsrt.NewFeedClient("", "", testutil.Logger())

	for _, tc := range []struct {
		name string
		url  string
		kind gtfsrt.FeedErrorKind
	}{
		{"bad status", statusServer.URL, gtfsrt.FeedErrorStatus},
		{"garbage body", garbageServer.URL, gtfsrt.FeedErrorParse},
		{"unreachable", deadServer.URL, gtfsrt.FeedErrorNetwork},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Fetch(context.Background(), tc.url, "trip updates")
			require.Error(t, err)

			var feedErr *gtfsrt.FeedError
			require.ErrorAs(t, err, &feedErr)
			assert.Equal(t, tc.kind, feedErr.Kind)
			if tc.kind == gtfsrt.FeedErrorStatus {
				assert.Equal(t, http.StatusForbidden, feedErr.StatusCode)
			}
		})
	}
}

func TestFeedClientNoAuthHeader(t *testing.T) {
	var hadAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		w.Write(testutil.BuildTripUpdateFeed(t, nil))
	}))
	defer server.Close()

	client := gtfsrt.NewFeedClient("", "", testutil.Logger())

	_, err := client.Fetch(context.Background(), server.URL, "trip updates")
	require.NoError(t, err)
	assert.False(t, hadAuth)
}
