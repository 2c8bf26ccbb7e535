package loader

import (
	"fmt"
	"strconv"
	"strings"

	"pedestrian_staging/models"
	"pedestrian_staging/pipeerr"
)

// Columns the pipeline cannot work without
var (
	SensorLocationColumns = []string{"sensor_id", "sensor_description", "latitude", "longitude", "location"}
	HourlyCountColumns    = []string{"date_time", "day", "time", "sensor_id", "hourly_counts"}
)

type rowReader struct {
	t   *Table
	idx map[string]int
	rec []string
	row int
	err error
}

func newRowReader(t *Table, required []string) (*rowReader, error) {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		idx[h] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, &pipeerr.FormatError{
				Field: "header",
				Value: strings.Join(t.Header, ","),
				Row:   -1,
				Err:   fmt.Errorf("missing column %q", col),
			}
		}
	}
	return &rowReader{t: t, idx: idx}, nil
}

func (r *rowReader) next(row int) {
	r.row = row
	r.rec = r.t.Records[row]
}

func (r *rowReader) str(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

// integer parses an integer column. Optional columns may be blank.
func (r *rowReader) integer(col string, required bool) int64 {
	s := r.str(col)
	if s == "" && !required {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some exports render integers as 12.0
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			r.fail(col, s, err)
			return 0
		}
		v = int64(f)
	}
	return v
}

func (r *rowReader) real(col string, required bool) float64 {
	s := r.str(col)
	if s == "" && !required {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(col, s, err)
		return 0
	}
	return v
}

func (r *rowReader) fail(col, value string, err error) {
	if r.err == nil {
		r.err = &pipeerr.FormatError{Field: col, Value: value, Row: r.row, Err: err}
	}
}

// DecodeSensorLocations converts a sensor location table into typed rows
func DecodeSensorLocations(t *Table) ([]models.SensorLocation, error) {
	r, err := newRowReader(t, SensorLocationColumns)
	if err != nil {
		return nil, err
	}

	out := make([]models.SensorLocation, 0, t.Len())
	for i := range t.Records {
		r.next(i)
		s := models.SensorLocation{
			SensorID:          r.integer("sensor_id", true),
			SensorDescription: r.str("sensor_description"),
			SensorName:        r.str("sensor_name"),
			Status:            r.str("status"),
			Latitude:          r.real("latitude", false),
			Longitude:         r.real("longitude", false),
			// Untrimmed: cleaning is part of wrangling
			Location: rawValue(r, "location"),
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, s)
	}
	return out, nil
}

// DecodeHourlyCounts converts an hourly counts table into typed rows.
// Derived columns are left empty for enrichment.
func DecodeHourlyCounts(t *Table) ([]models.HourlyCount, error) {
	r, err := newRowReader(t, HourlyCountColumns)
	if err != nil {
		return nil, err
	}

	out := make([]models.HourlyCount, 0, t.Len())
	for i := range t.Records {
		r.next(i)
		c := models.HourlyCount{
			ID:           r.integer("id", false),
			DateTime:     r.str("date_time"),
			Year:         r.integer("year", false),
			Month:        r.str("month"),
			MDate:        r.integer("mdate", false),
			Day:          r.str("day"),
			Time:         r.integer("time", true),
			SensorID:     r.integer("sensor_id", true),
			SensorName:   r.str("sensor_name"),
			HourlyCounts: r.integer("hourly_counts", true),
		}
		if r.err == nil && (c.Time < 0 || c.Time > 23) {
			r.fail("time", strconv.FormatInt(c.Time, 10), fmt.Errorf("hour out of range 0-23"))
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, c)
	}
	return out, nil
}

func rawValue(r *rowReader, col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return r.rec[i]
}
