package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"transitboard.dev/gtfsrt/model"
	"transitboard.dev/gtfsrt/storage"
)

type StopCSV struct {
	ID   string  `csv:"stop_id"`
	Code string  `csv:"stop_code"`
	Name string  `csv:"stop_name"`
	Desc string  `csv:"stop_desc"`
	Lat  float64 `csv:"stop_lat"`
	Lon  float64 `csv:"stop_lon"`
}

func ParseStops(writer storage.ScheduleWriter, data io.Reader) error {
	stopCsv := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &stopCsv); err != nil {
		return fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	seen := map[string]bool{}
	for _, st := range stopCsv {
		if st.ID == "" {
			return fmt.Errorf("empty stop_id")
		}
		if seen[st.ID] {
			return fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		seen[st.ID] = true

		err := writer.WriteStop(&model.Stop{
			ID:   st.ID,
			Code: st.Code,
			Name: st.Name,
			Desc: st.Desc,
			Lat:  st.Lat,
			Lon:  st.Lon,
		})
		if err != nil {
			return &writerError{fmt.Errorf("writing stop '%s': %w", st.ID, err)}
		}
	}

	return nil
}
