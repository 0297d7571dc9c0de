package testutil

// Helpers and configuration for tests.

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"transitboard.dev/gtfsrt/parse"
	"transitboard.dev/gtfsrt/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	if backend == "memory" {
		s = storage.NewMemoryStorage()
	} else if backend == "sqlite" {
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	}
	require.NotEqual(t, nil, s, "unknown backend %q", backend)

	return s
}

// LoadSchedule parses a zipped archive into a fresh backend and
// returns a reader over it.
func LoadSchedule(t testing.TB, backend string, buf []byte) storage.ScheduleReader {
	s := BuildStorage(t, backend)

	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	require.NoError(t, parse.ParseSchedule(writer, buf, Logger()))

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	return reader
}

// BuildArchive assembles a zip from per-file line lists, filling in
// (mostly blank) dummy data for missing required tables.
func BuildArchive(t testing.TB, files map[string][]string) []byte {
	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		files["calendar.txt"] = []string{"service_id"}
	}
	if files["routes.txt"] == nil {
		files["routes.txt"] = []string{"route_id"}
	}
	if files["trips.txt"] == nil {
		files["trips.txt"] = []string{"trip_id"}
	}
	if files["stops.txt"] == nil {
		files["stops.txt"] = []string{"stop_id"}
	}
	if files["stop_times.txt"] == nil {
		files["stop_times.txt"] = []string{"stop_id"}
	}

	return BuildZip(t, files)
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// Helpers for building gtfs-realtime feeds.

type StopUpdate struct {
	StopID        string
	StopSequence  uint32
	ArrivalTime   time.Time
	DepartureTime time.Time
}

type TripUpdate struct {
	TripID      string
	RouteID     string
	DirectionID *uint32
	StopUpdates []StopUpdate
}

type VehiclePosition struct {
	TripID    string
	Latitude  float32
	Longitude float32
}

// BuildTripUpdateFeed marshals trip updates into a FULL_DATASET
// FeedMessage.
func BuildTripUpdateFeed(t testing.TB, tripUpdates []TripUpdate) []byte {
	entity := make([]*gtfsproto.FeedEntity, 0, len(tripUpdates))

	for _, tripUpdate := range tripUpdates {
		stopTimeUpdate := make([]*gtfsproto.TripUpdate_StopTimeUpdate, 0, len(tripUpdate.StopUpdates))

		for _, stopUpdate := range tripUpdate.StopUpdates {
			stup := &gtfsproto.TripUpdate_StopTimeUpdate{
				StopSequence: proto.Uint32(stopUpdate.StopSequence),
				StopId:       proto.String(stopUpdate.StopID),
			}
			if !stopUpdate.ArrivalTime.IsZero() {
				stup.Arrival = &gtfsproto.TripUpdate_StopTimeEvent{
					Time: proto.Int64(stopUpdate.ArrivalTime.Unix()),
				}
			}
			if !stopUpdate.DepartureTime.IsZero() {
				stup.Departure = &gtfsproto.TripUpdate_StopTimeEvent{
					Time: proto.Int64(stopUpdate.DepartureTime.Unix()),
				}
			}
			stopTimeUpdate = append(stopTimeUpdate, stup)
		}

		entity = append(entity, &gtfsproto.FeedEntity{
			Id: proto.String(tripUpdate.TripID),
			TripUpdate: &gtfsproto.TripUpdate{
				Trip: &gtfsproto.TripDescriptor{
					TripId:      proto.String(tripUpdate.TripID),
					RouteId:     proto.String(tripUpdate.RouteID),
					DirectionId: tripUpdate.DirectionID,
				},
				StopTimeUpdate: stopTimeUpdate,
			},
		})
	}

	return marshalFeed(t, entity)
}

// BuildVehiclePositionFeed marshals vehicle positions into a
// FULL_DATASET FeedMessage.
func BuildVehiclePositionFeed(t testing.TB, positions []VehiclePosition) []byte {
	entity := make([]*gtfsproto.FeedEntity, 0, len(positions))

	for _, pos := range positions {
		entity = append(entity, &gtfsproto.FeedEntity{
			Id: proto.String(pos.TripID),
			Vehicle: &gtfsproto.VehiclePosition{
				Trip: &gtfsproto.TripDescriptor{
					TripId: proto.String(pos.TripID),
				},
				Position: &gtfsproto.Position{
					Latitude:  proto.Float32(pos.Latitude),
					Longitude: proto.Float32(pos.Longitude),
				},
			},
		})
	}

	return marshalFeed(t, entity)
}

func marshalFeed(t testing.TB, entity []*gtfsproto.FeedEntity) []byte {
	incrementality := gtfsproto.FeedHeader_FULL_DATASET
	feed := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(uint64(time.Now().Unix())),
		},
		Entity: entity,
	}

	data, err := proto.Marshal(feed)
	require.NoError(t, err)

	return data
}
