package stats

import "pedestrian_staging/models"

// Period is the calendar granularity used to group counts for ranking
type Period int

const (
	PeriodDay Period = iota
	PeriodMonth
)

func (p Period) String() string {
	if p == PeriodMonth {
		return "month"
	}
	return "day"
}

// column is the staged grouping column of the period. It is never taken from input.
func (p Period) column() string {
	if p == PeriodMonth {
		return "month_key"
	}
	return "date_key"
}

// Table returns the derived table holding the ranks of the period
func (p Period) Table() string {
	if p == PeriodMonth {
		return models.TopNByMonthTable
	}
	return models.TopNByDayTable
}

// Ranked converts ranks into the stored rows of the period, whose key column
// is named after the grouping column
func (p Period) Ranked(rows []models.LocationRank) any {
	if p == PeriodMonth {
		out := make([]models.MonthlyLocationRank, len(rows))
		for i, r := range rows {
			out[i] = models.MonthlyLocationRank{
				MonthKey: r.PeriodKey, SensorID: r.SensorID, AvgHourlyCounts: r.AvgHourlyCounts,
				SensorDescription: r.SensorDescription, Latitude: r.Latitude, Longitude: r.Longitude,
				Location: r.Location, Rank: r.Rank,
			}
		}
		return out
	}
	out := make([]models.DailyLocationRank, len(rows))
	for i, r := range rows {
		out[i] = models.DailyLocationRank{
			DateKey: r.PeriodKey, SensorID: r.SensorID, AvgHourlyCounts: r.AvgHourlyCounts,
			SensorDescription: r.SensorDescription, Latitude: r.Latitude, Longitude: r.Longitude,
			Location: r.Location, Rank: r.Rank,
		}
	}
	return out
}
