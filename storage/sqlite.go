package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// SQLite backed Storage. Each feed gets its own database, either in
// memory or as a file under Directory.
type SQLiteStorage struct {
	SQLiteConfig

	feeds map[string]*sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		feeds: map[string]*sql.DB{},
	}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS routes (
    id TEXT PRIMARY KEY,
    agency_id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    "desc" TEXT NOT NULL,
    type INTEGER NOT NULL,
    color TEXT NOT NULL,
    text_color TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stops (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    "desc" TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS trips_route_direction ON trips (route_id, direction_id);

CREATE TABLE IF NOT EXISTS calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    weekday INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_dates (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calendar_dates_date ON calendar_dates (date);

CREATE TABLE IF NOT EXISTS stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival TEXT NOT NULL,
    departure TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS stop_times_trip ON stop_times (trip_id, stop_sequence);
`

func (s *SQLiteStorage) open(feedID string) (*sql.DB, error) {
	if db, ok := s.feeds[feedID]; ok {
		return db, nil
	}

	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = fmt.Sprintf("%s/schedule_%s.db", s.Directory, feedID)
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own database, so the
	// pool must stay at a single connection.
	if !s.OnDisk {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.feeds[feedID] = db

	return db, nil
}

func (s *SQLiteStorage) GetWriter(feedID string) (ScheduleWriter, error) {
	db, err := s.open(feedID)
	if err != nil {
		return nil, err
	}

	// Discard any previous data for this feed.
	for _, table := range []string{"routes", "stops", "trips", "calendar", "calendar_dates", "stop_times"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	return &sqlScheduleWriter{db: db, placeholder: questionPlaceholder}, nil
}

func (s *SQLiteStorage) GetReader(feedID string) (ScheduleReader, error) {
	db, ok := s.feeds[feedID]
	if !ok {
		if !s.OnDisk {
			return nil, ErrFeedNotFound
		}
		var err error
		db, err = s.open(feedID)
		if err != nil {
			return nil, err
		}
	}
	return &sqlScheduleReader{db: db, placeholder: questionPlaceholder}, nil
}

func (s *SQLiteStorage) Close() error {
	for _, db := range s.feeds {
		db.Close()
	}
	s.feeds = map[string]*sql.DB{}
	return nil
}

// questionPlaceholder numbers parameters the sqlite way: every
// placeholder is a bare "?".
func questionPlaceholder(int) string { return "?" }
