package parse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"transitboard.dev/gtfsrt/model"
	"transitboard.dev/gtfsrt/storage"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Desc      string `csv:"route_desc"`
	Type      string `csv:"route_type"`
	Color     string `csv:"route_color"`
	TextColor string `csv:"route_text_color"`
}

func ParseRoutes(writer storage.ScheduleWriter, data io.Reader) error {
	routeCsv := []*RouteCSV{}
	if err := gocsv.Unmarshal(data, &routeCsv); err != nil {
		return fmt.Errorf("unmarshaling routes csv: %w", err)
	}

	seen := map[string]bool{}
	for _, r := range routeCsv {
		if r.ID == "" {
			return fmt.Errorf("route has no route_id")
		}
		if seen[r.ID] {
			return fmt.Errorf("repeated route_id: '%s'", r.ID)
		}
		seen[r.ID] = true

		routeType := 0
		if r.Type != "" {
			var err error
			routeType, err = strconv.Atoi(r.Type)
			if err != nil {
				return fmt.Errorf("route_id '%s' has invalid route_type: %w", r.ID, err)
			}
		}

		err := writer.WriteRoute(&model.Route{
			ID:        r.ID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Desc:      r.Desc,
			Type:      routeType,
			Color:     r.Color,
			TextColor: r.TextColor,
		})
		if err != nil {
			return &writerError{fmt.Errorf("writing route: %w", err)}
		}
	}

	return nil
}
