package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedestrian_staging/models"
)

func TestFrameOfFollowsFieldOrder(t *testing.T) {
	counts := []models.HourlyCount{
		{ID: 1, DateTime: "2021-06-15T08:00:00", Day: "Tuesday", Time: 8, SensorID: 3, HourlyCounts: 120, DateKey: "20210615", MonthKey: "202106", DayType: "Weekday"},
	}

	frame, err := FrameOf(counts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"id", "date_time", "year", "month", "mdate", "day", "time",
		"sensor_id", "sensor_name", "hourly_counts", "date_key", "month_key", "day_type",
	}, frame.ColumnNames())
	assert.Equal(t, KindInteger, frame.Columns[frame.ColumnIndex("hourly_counts")].Kind)
	assert.Equal(t, KindText, frame.Columns[frame.ColumnIndex("date_key")].Kind)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, "20210615", frame.Rows[0][frame.ColumnIndex("date_key")])
}

func TestFrameOfRejectsNonSlices(t *testing.T) {
	_, err := FrameOf(models.SensorLocation{})
	assert.Error(t, err)

	_, err = FrameOf([]int{1, 2})
	assert.Error(t, err)
}

func TestFrameDecode(t *testing.T) {
	frame := NewFrame(
		Column{Name: "sensor_id", Kind: KindInteger},
		Column{Name: "avg_hourly_counts", Kind: KindReal},
	)
	require.NoError(t, frame.Append(int64(5), 42.5))
	assert.Error(t, frame.Append(int64(6)))

	var out []models.SensorAverage
	require.NoError(t, frame.Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, int64(5), out[0].SensorID)
	assert.Equal(t, 42.5, out[0].AvgHourlyCounts)
}
