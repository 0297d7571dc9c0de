package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
)

// Postgres backed Storage, for deployments where several processes
// share one parsed schedule. Each feed lives in its own postgres
// schema, and each feed gets its own connection pool whose
// connections set search_path at session startup. Pointing
// search_path through the connection string rather than SET matters:
// a SET on a pooled *sql.DB only reaches the one connection that ran
// it, and would leak across feeds.
type PSQLStorage struct {
	connStr string
	db      *sql.DB // schema management only
	feeds   map[string]*sql.DB

	// ClearOnGetWriter empties a feed's schema before writing. Set
	// in tests.
	ClearOnGetWriter bool
}

func NewPSQLStorage(connStr string, clearOnGetWriter bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &PSQLStorage{
		connStr:          connStr,
		db:               db,
		feeds:            map[string]*sql.DB{},
		ClearOnGetWriter: clearOnGetWriter,
	}, nil
}

const psqlSchema = `
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
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id SMALLINT NOT NULL
);
CREATE INDEX IF NOT EXISTS trips_route_direction ON trips (route_id, direction_id);

CREATE TABLE IF NOT EXISTS calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    weekday SMALLINT NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_dates (
    seq SERIAL PRIMARY KEY,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type SMALLINT NOT NULL
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

// Feed IDs end up in postgres schema names, which only allow a
// restricted character set.
func psqlSchemaName(feedID string) string {
	var b strings.Builder
	b.WriteString("feed_")
	for _, c := range strings.ToLower(feedID) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// search_path is a run-time parameter, so carrying it in the
// connection string applies it to every connection the pool opens.
func schemaConnStr(connStr, schema string) (string, error) {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return "", fmt.Errorf("parsing connection string: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return connStr + " search_path=" + schema, nil
}

// feedDB returns the feed's dedicated pool, opening it on first use.
// Schema resolution happens by name at query time, so the pool
// survives the schema being dropped and recreated.
func (s *PSQLStorage) feedDB(feedID string) (*sql.DB, error) {
	schema := psqlSchemaName(feedID)
	if db, ok := s.feeds[schema]; ok {
		return db, nil
	}

	dsn, err := schemaConnStr(s.connStr, schema)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening feed database: %w", err)
	}

	s.feeds[schema] = db

	return db, nil
}

func (s *PSQLStorage) GetWriter(feedID string) (ScheduleWriter, error) {
	schema := psqlSchemaName(feedID)

	if s.ClearOnGetWriter {
		if _, err := s.db.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			return nil, fmt.Errorf("dropping schema: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db, err := s.feedDB(feedID)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(psqlSchema); err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	for _, table := range []string{"routes", "stops", "trips", "calendar", "calendar_dates", "stop_times"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	return &sqlScheduleWriter{db: db, placeholder: dollarPlaceholder}, nil
}

func (s *PSQLStorage) GetReader(feedID string) (ScheduleReader, error) {
	schema := psqlSchemaName(feedID)

	var exists bool
	err := s.db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)",
		schema,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking schema: %w", err)
	}
	if !exists {
		return nil, ErrFeedNotFound
	}

	db, err := s.feedDB(feedID)
	if err != nil {
		return nil, err
	}

	return &sqlScheduleReader{db: db, placeholder: dollarPlaceholder}, nil
}

func (s *PSQLStorage) Close() error {
	for _, db := range s.feeds {
		db.Close()
	}
	s.feeds = map[string]*sql.DB{}
	return s.db.Close()
}

// dollarPlaceholder numbers parameters the postgres way: "$1", "$2", ...
func dollarPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }
