// Package enrich derives the calendar columns of hourly counts and cleans
// sensor location text before staging.
package enrich

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pedestrian_staging/models"
	"pedestrian_staging/pipeerr"
)

const (
	Weekday = "Weekday"
	Weekend = "Weekend"

	dateLayout = "2006-01-02"
)

var (
	leadingArtifacts  = regexp.MustCompile(`^(?:\s|\\[nrt])+`)
	trailingArtifacts = regexp.MustCompile(`(?:\s|\\[nrt])+$`)

	errEmptyAfterClean = errors.New("value is empty once whitespace and escape artifacts are removed")
)

// DeriveDateKey returns the yyyymmdd key of an ISO-like date-time such as
// "2021-06-15T08:00:00". Anything after the date must be separated by 'T' or
// a space.
func DeriveDateKey(dateTime string) (string, error) {
	if len(dateTime) < len(dateLayout) {
		return "", &pipeerr.FormatError{Field: "date_time", Value: dateTime, Row: -1, Err: fmt.Errorf("too short for %s", dateLayout)}
	}
	if len(dateTime) > len(dateLayout) {
		if sep := dateTime[len(dateLayout)]; sep != 'T' && sep != ' ' {
			return "", &pipeerr.FormatError{Field: "date_time", Value: dateTime, Row: -1, Err: fmt.Errorf("unexpected separator %q after date", sep)}
		}
	}
	d, err := time.Parse(dateLayout, dateTime[:len(dateLayout)])
	if err != nil {
		return "", &pipeerr.FormatError{Field: "date_time", Value: dateTime, Row: -1, Err: err}
	}
	return d.Format("20060102"), nil
}

// DeriveMonthKey returns the yyyymm prefix of a date key
func DeriveMonthKey(dateKey string) string {
	if len(dateKey) < 6 {
		return dateKey
	}
	return dateKey[:6]
}

// ClassifyDayType maps a day name to Weekend or Weekday.
// Matching is a case-sensitive substring test on "Saturday" and "Sunday".
func ClassifyDayType(day string) string {
	if strings.Contains(day, "Saturday") || strings.Contains(day, "Sunday") {
		return Weekend
	}
	return Weekday
}

// CleanLocationText strips surrounding whitespace and literal \n, \r, \t
// sequences from a location value. A non-empty value that cleans to nothing
// is a FormatError.
func CleanLocationText(raw string) (string, error) {
	cleaned := leadingArtifacts.ReplaceAllString(raw, "")
	cleaned = trailingArtifacts.ReplaceAllString(cleaned, "")
	if raw != "" && cleaned == "" {
		return "", &pipeerr.FormatError{Field: "location", Value: raw, Row: -1, Err: errEmptyAfterClean}
	}
	return cleaned, nil
}

// EnrichHourlyCounts fills DateKey, MonthKey and DayType of every count in place.
// The first failure is returned with its row index.
func EnrichHourlyCounts(counts []models.HourlyCount) error {
	for i := range counts {
		key, err := DeriveDateKey(counts[i].DateTime)
		if err != nil {
			return pipeerr.WithRow(err, i)
		}
		counts[i].DateKey = key
		counts[i].MonthKey = DeriveMonthKey(key)
		counts[i].DayType = ClassifyDayType(counts[i].Day)
	}
	return nil
}

// WrangleSensorLocations cleans the location text of every sensor in place.
// The first failure is returned with its row index.
func WrangleSensorLocations(sensors []models.SensorLocation) error {
	for i := range sensors {
		cleaned, err := CleanLocationText(sensors[i].Location)
		if err != nil {
			return pipeerr.WithRow(err, i)
		}
		sensors[i].Location = cleaned
	}
	return nil
}
