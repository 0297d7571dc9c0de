package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"transitboard.dev/gtfsrt/model"
	"transitboard.dev/gtfsrt/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

func ParseCalendar(writer storage.ScheduleWriter, data io.Reader) error {
	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		return fmt.Errorf("unmarshaling calendar csv: %w", err)
	}

	seen := map[string]bool{}

	for _, c := range calendarCsv {
		if c.ServiceID == "" {
			return fmt.Errorf("empty service_id")
		}
		if seen[c.ServiceID] {
			return fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		seen[c.ServiceID] = true

		var weekday int8
		for _, day := range []struct {
			flag int8
			day  time.Weekday
		}{
			{c.Monday, time.Monday},
			{c.Tuesday, time.Tuesday},
			{c.Wednesday, time.Wednesday},
			{c.Thursday, time.Thursday},
			{c.Friday, time.Friday},
			{c.Saturday, time.Saturday},
			{c.Sunday, time.Sunday},
		} {
			if day.flag == 1 {
				weekday |= 1 << day.day
			} else if day.flag != 0 {
				return fmt.Errorf("invalid %s value '%d'", day.day, day.flag)
			}
		}

		if _, err := time.ParseInLocation("20060102", c.StartDate, time.UTC); err != nil {
			return fmt.Errorf("parsing start_date: %w", err)
		}
		if _, err := time.ParseInLocation("20060102", c.EndDate, time.UTC); err != nil {
			return fmt.Errorf("parsing end_date: %w", err)
		}

		err := writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return &writerError{fmt.Errorf("writing calendar: %w", err)}
		}
	}

	return nil
}
