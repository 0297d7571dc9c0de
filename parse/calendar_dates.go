package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"transitboard.dev/gtfsrt/model"
	"transitboard.dev/gtfsrt/storage"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

// Rows are written in file order. Duplicate service/date pairs are
// allowed; the reader applies them last-write-wins.
func ParseCalendarDates(writer storage.ScheduleWriter, data io.Reader) error {
	calendarDateCsv := []*CalendarDateCSV{}
	if err := gocsv.Unmarshal(data, &calendarDateCsv); err != nil {
		return fmt.Errorf("unmarshaling calendar_dates csv: %w", err)
	}

	for _, cd := range calendarDateCsv {
		if cd.ServiceID == "" {
			return fmt.Errorf("empty service_id")
		}
		if cd.ExceptionType < 1 || cd.ExceptionType > 2 {
			return fmt.Errorf("illegal exception_type: '%d'", cd.ExceptionType)
		}

		if _, err := time.ParseInLocation("20060102", cd.Date, time.UTC); err != nil {
			return fmt.Errorf("parsing date '%s': %w", cd.Date, err)
		}

		err := writer.WriteCalendarDate(&model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: model.ExceptionType(cd.ExceptionType),
		})
		if err != nil {
			return &writerError{fmt.Errorf("writing calendar date: %w", err)}
		}
	}

	return nil
}
