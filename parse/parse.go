package parse

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"transitboard.dev/gtfsrt/storage"
)

// ParseSchedule unpacks a static GTFS archive and writes its tables
// to the given writer.
//
// A missing or malformed table yields an empty table rather than
// aborting the whole load: a schedule with, say, a broken
// calendar_dates.txt is still useful for everything else. Only
// zip-level and writer errors abort the parse.
func ParseSchedule(writer storage.ScheduleWriter, buf []byte, logger *slog.Logger) error {
	file := map[string]io.ReadCloser{
		"routes.txt":         nil,
		"stops.txt":          nil,
		"trips.txt":          nil,
		"stop_times.txt":     nil,
		"calendar.txt":       nil,
		"calendar_dates.txt": nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	parseTable := func(name string, parse func(io.Reader) error) error {
		if file[name] == nil {
			logger.Warn("table missing from archive, treating as empty", "table", name)
			return nil
		}
		if err := parse(file[name]); err != nil {
			if isWriterError(err) {
				return fmt.Errorf("parsing %s: %w", name, err)
			}
			logger.Warn("table malformed, treating as empty", "table", name, "error", err)
		}
		return nil
	}

	tables := []struct {
		name  string
		parse func(io.Reader) error
	}{
		{"routes.txt", func(in io.Reader) error { return ParseRoutes(writer, in) }},
		{"calendar.txt", func(in io.Reader) error { return ParseCalendar(writer, in) }},
		{"calendar_dates.txt", func(in io.Reader) error { return ParseCalendarDates(writer, in) }},
		{"trips.txt", func(in io.Reader) error { return ParseTrips(writer, in) }},
		{"stops.txt", func(in io.Reader) error { return ParseStops(writer, in) }},
		{"stop_times.txt", func(in io.Reader) error {
			if err := writer.BeginStopTimes(); err != nil {
				return &writerError{err}
			}
			if err := ParseStopTimes(writer, in); err != nil {
				return err
			}
			if err := writer.EndStopTimes(); err != nil {
				return &writerError{err}
			}
			return nil
		}},
	}

	for _, table := range tables {
		if err := parseTable(table.name, table.parse); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing schedule writer: %w", err)
	}

	return nil
}

// Distinguishes storage failures (which must abort the load) from CSV
// content failures (which degrade to an empty table).
type writerError struct {
	err error
}

func (e *writerError) Error() string { return e.err.Error() }
func (e *writerError) Unwrap() error { return e.err }

func isWriterError(err error) bool {
	var we *writerError
	return errors.As(err, &we)
}
