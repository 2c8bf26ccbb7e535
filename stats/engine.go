// Package stats computes the derived statistics tables from the staged
// sensors and hourly counts.
package stats

import (
	"context"
	"fmt"
	"sort"

	"pedestrian_staging/logger"
	"pedestrian_staging/models"
	"pedestrian_staging/pipeerr"
	"pedestrian_staging/store"
)

// Statistic names used in errors and logs
const (
	StatTopNByDay      = "top_n_by_day"
	StatTopNByMonth    = "top_n_by_month"
	StatDecline        = "decline_during_lockdown"
	StatGrowth         = "growth_after_lockdown"
	StatByDayTime      = "peak_hours_by_day_time"
	StatWeekdayWeekend = "weekday_weekend_pattern"
)

// Engine reads SENSOR and PEDESTRIAN_PER_HOUR and writes the derived tables
type Engine struct {
	store *store.Store
	topN  int
}

// Option configures an Engine
type Option func(*Engine)

// WithTopN keeps only ranks up to n in the top locations tables written by
// ComputeAll. Zero keeps every rank.
func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// NewEngine creates an engine over the staging store
func NewEngine(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sensorColumns selects the sensor metadata joined onto every statistic
const sensorColumns = "s.sensor_description, s.latitude, s.longitude, s.location"

// TopNByPeriod averages hourly counts per period and sensor and dense ranks
// the sensors of each period by descending average. Every row is returned.
func (e *Engine) TopNByPeriod(ctx context.Context, period Period) ([]models.LocationRank, error) {
	col := period.column()
	query := fmt.Sprintf(`SELECT c.period_key, c.sensor_id, c.avg_hourly_counts, %s
FROM (SELECT %s AS period_key, sensor_id, AVG(hourly_counts) AS avg_hourly_counts
      FROM %s GROUP BY %s, sensor_id) c
JOIN %s s ON c.sensor_id = s.sensor_id
ORDER BY c.period_key, c.avg_hourly_counts DESC, c.sensor_id`,
		sensorColumns, col, e.store.Quote(models.HourlyCountTable), col, e.store.Quote(models.SensorTable))

	frame, err := e.store.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	var rows []models.LocationRank
	if err := frame.Decode(&rows); err != nil {
		return nil, &pipeerr.ComputationError{Stat: "top_n_by_" + period.String(), Err: err}
	}
	DenseRank(rows)
	return rows, nil
}

// DenseRank assigns ranks to rows already ordered by period then descending
// average. Equal averages share a rank and the next distinct average follows
// without a gap.
func DenseRank(rows []models.LocationRank) {
	var (
		rank    int64
		period  string
		prevAvg float64
	)
	for i := range rows {
		switch {
		case i == 0 || rows[i].PeriodKey != period:
			period = rows[i].PeriodKey
			rank = 1
		case rows[i].AvgHourlyCounts != prevAvg:
			rank++
		}
		prevAvg = rows[i].AvgHourlyCounts
		rows[i].Rank = rank
	}
}

// FilterTopN keeps the rows ranked n or better. n <= 0 keeps every row.
func FilterTopN(rows []models.LocationRank, n int) []models.LocationRank {
	if n <= 0 {
		return rows
	}
	out := make([]models.LocationRank, 0, len(rows))
	for _, r := range rows {
		if r.Rank <= int64(n) {
			out = append(out, r)
		}
	}
	return out
}

// windowAverages averages hourly counts per sensor over the rows matching where
func (e *Engine) windowAverages(ctx context.Context, stat, where string, args []any) ([]models.SensorAverage, error) {
	query := fmt.Sprintf(`SELECT c.sensor_id, c.avg_hourly_counts, %s
FROM (SELECT sensor_id, AVG(hourly_counts) AS avg_hourly_counts
      FROM %s WHERE %s GROUP BY sensor_id) c
JOIN %s s ON c.sensor_id = s.sensor_id
ORDER BY c.sensor_id`,
		sensorColumns, e.store.Quote(models.HourlyCountTable), where, e.store.Quote(models.SensorTable))

	frame, err := e.store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var rows []models.SensorAverage
	if err := frame.Decode(&rows); err != nil {
		return nil, &pipeerr.ComputationError{Stat: stat, Err: err}
	}
	return rows, nil
}

type comparison struct {
	sensor  models.SensorAverage
	left    float64
	right   float64
	diff    float64
	percent float64
}

// compare inner joins two per-sensor averages, computes left - right and its
// percentage of the chosen divisor, and sorts by descending difference.
func compare(stat string, left, right []models.SensorAverage, divideByLeft bool) ([]comparison, error) {
	byID := make(map[int64]float64, len(right))
	for _, r := range right {
		byID[r.SensorID] = r.AvgHourlyCounts
	}

	var out []comparison
	for _, l := range left {
		r, ok := byID[l.SensorID]
		if !ok {
			continue
		}
		divisor := r
		if divideByLeft {
			divisor = l.AvgHourlyCounts
		}
		if divisor == 0 {
			return nil, &pipeerr.ComputationError{Stat: stat, SensorID: l.SensorID, Err: pipeerr.ErrDivisionByZero}
		}
		diff := l.AvgHourlyCounts - r
		out = append(out, comparison{
			sensor:  l,
			left:    l.AvgHourlyCounts,
			right:   r,
			diff:    diff,
			percent: diff / divisor * 100,
		})
	}
	if len(out) == 0 {
		return nil, &pipeerr.ComputationError{Stat: stat, Err: pipeerr.ErrEmptyResult}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].diff != out[j].diff {
			return out[i].diff > out[j].diff
		}
		return out[i].sensor.SensorID < out[j].sensor.SensorID
	})
	return out, nil
}

// DeclineDuringLockdown compares each sensor's average before the first
// lockdown with its average during lockdowns. Sensors missing from either
// window are left out.
func (e *Engine) DeclineDuringLockdown(ctx context.Context) ([]models.LockdownDecline, error) {
	where, args := PrecovidPredicate()
	precovid, err := e.windowAverages(ctx, StatDecline, where, args)
	if err != nil {
		return nil, err
	}
	where, args = LockdownPredicate()
	lockdown, err := e.windowAverages(ctx, StatDecline, where, args)
	if err != nil {
		return nil, err
	}

	pairs, err := compare(StatDecline, precovid, lockdown, true)
	if err != nil {
		return nil, err
	}
	rows := make([]models.LockdownDecline, len(pairs))
	for i, p := range pairs {
		rows[i] = models.LockdownDecline{
			SensorID:                p.sensor.SensorID,
			SensorDescription:       p.sensor.SensorDescription,
			Latitude:                p.sensor.Latitude,
			Longitude:               p.sensor.Longitude,
			Location:                p.sensor.Location,
			PrecovidAvgHourlyCounts: p.left,
			LockdownAvgHourlyCounts: p.right,
			DeclinedAvgHourlyCounts: p.diff,
			PercentDecline:          p.percent,
		}
	}
	return rows, nil
}

// GrowthAfterLockdown compares each sensor's average after the last lockdown
// with its average during lockdowns. Sensors missing from either window are
// left out.
func (e *Engine) GrowthAfterLockdown(ctx context.Context) ([]models.LockdownGrowth, error) {
	where, args := AfterLockdownPredicate()
	after, err := e.windowAverages(ctx, StatGrowth, where, args)
	if err != nil {
		return nil, err
	}
	where, args = LockdownPredicate()
	lockdown, err := e.windowAverages(ctx, StatGrowth, where, args)
	if err != nil {
		return nil, err
	}

	pairs, err := compare(StatGrowth, after, lockdown, false)
	if err != nil {
		return nil, err
	}
	rows := make([]models.LockdownGrowth, len(pairs))
	for i, p := range pairs {
		rows[i] = models.LockdownGrowth{
			SensorID:                     p.sensor.SensorID,
			SensorDescription:            p.sensor.SensorDescription,
			Latitude:                     p.sensor.Latitude,
			Longitude:                    p.sensor.Longitude,
			Location:                     p.sensor.Location,
			AfterLockdownAvgHourlyCounts: p.left,
			LockdownAvgHourlyCounts:      p.right,
			GrowthAvgHourlyCounts:        p.diff,
			PercentGrowth:                p.percent,
		}
	}
	return rows, nil
}

// PeakHoursByDayTime averages hourly counts per sensor, weekday and hour
func (e *Engine) PeakHoursByDayTime(ctx context.Context) ([]models.DayTimePattern, error) {
	var rows []models.DayTimePattern
	if err := e.hourlyPattern(ctx, StatByDayTime, "day", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// WeekdayWeekendPattern averages hourly counts per sensor, day type and hour
func (e *Engine) WeekdayWeekendPattern(ctx context.Context) ([]models.DayTypePattern, error) {
	var rows []models.DayTypePattern
	if err := e.hourlyPattern(ctx, StatWeekdayWeekend, "day_type", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// hourlyPattern groups by sensor, dayColumn and hour. dayColumn is one of
// the two fixed names passed by the callers above.
func (e *Engine) hourlyPattern(ctx context.Context, stat, dayColumn string, dest any) error {
	query := fmt.Sprintf(`SELECT c.sensor_id, c.%[1]s, c.time, c.avg_hourly_counts, %[2]s
FROM (SELECT sensor_id, %[1]s, time, AVG(hourly_counts) AS avg_hourly_counts
      FROM %[3]s GROUP BY sensor_id, %[1]s, time) c
JOIN %[4]s s ON c.sensor_id = s.sensor_id
ORDER BY c.sensor_id, c.%[1]s, c.time`,
		dayColumn, sensorColumns, e.store.Quote(models.HourlyCountTable), e.store.Quote(models.SensorTable))

	frame, err := e.store.Query(ctx, query)
	if err != nil {
		return err
	}
	if err := frame.Decode(dest); err != nil {
		return &pipeerr.ComputationError{Stat: stat, Err: err}
	}
	return nil
}

// Results holds every derived table of one run
type Results struct {
	TopByDay       []models.LocationRank
	TopByMonth     []models.LocationRank
	Decline        []models.LockdownDecline
	Growth         []models.LockdownGrowth
	ByDayTime      []models.DayTimePattern
	WeekdayWeekend []models.DayTypePattern
}

// DerivedTable is one computed table ready to be written or exported
type DerivedTable struct {
	Name string
	// Rows is a slice of one of the statistics models
	Rows any
	Len  int
}

// Tables returns the derived tables in computation order
func (r *Results) Tables() []DerivedTable {
	return []DerivedTable{
		{Name: PeriodDay.Table(), Rows: PeriodDay.Ranked(r.TopByDay), Len: len(r.TopByDay)},
		{Name: PeriodMonth.Table(), Rows: PeriodMonth.Ranked(r.TopByMonth), Len: len(r.TopByMonth)},
		{Name: models.DeclineTable, Rows: r.Decline, Len: len(r.Decline)},
		{Name: models.GrowthTable, Rows: r.Growth, Len: len(r.Growth)},
		{Name: models.ByDayTimeTable, Rows: r.ByDayTime, Len: len(r.ByDayTime)},
		{Name: models.WeekdayWeekendTable, Rows: r.WeekdayWeekend, Len: len(r.WeekdayWeekend)},
	}
}

// Compute runs the six statistics without writing anything
func (e *Engine) Compute(ctx context.Context) (*Results, error) {
	var (
		res Results
		err error
	)
	if res.TopByDay, err = e.TopNByPeriod(ctx, PeriodDay); err != nil {
		return nil, err
	}
	if res.TopByMonth, err = e.TopNByPeriod(ctx, PeriodMonth); err != nil {
		return nil, err
	}
	res.TopByDay = FilterTopN(res.TopByDay, e.topN)
	res.TopByMonth = FilterTopN(res.TopByMonth, e.topN)

	if res.Decline, err = e.DeclineDuringLockdown(ctx); err != nil {
		return nil, err
	}
	if res.Growth, err = e.GrowthAfterLockdown(ctx); err != nil {
		return nil, err
	}
	if res.ByDayTime, err = e.PeakHoursByDayTime(ctx); err != nil {
		return nil, err
	}
	if res.WeekdayWeekend, err = e.WeekdayWeekendPattern(ctx); err != nil {
		return nil, err
	}
	return &res, nil
}

// ComputeAll computes the six statistics and replaces their tables.
// Tables are written one by one; a failure leaves earlier tables in place.
func (e *Engine) ComputeAll(ctx context.Context) (*Results, error) {
	res, err := e.Compute(ctx)
	if err != nil {
		return nil, err
	}
	for i, t := range res.Tables() {
		frame, err := store.FrameOf(t.Rows)
		if err != nil {
			return nil, fmt.Errorf("failed to build frame for %s: %w", t.Name, err)
		}
		if err := e.store.Write(ctx, t.Name, frame, store.ModeReplace); err != nil {
			return nil, err
		}
		logger.LogProgress(i+1, len(models.DerivedTables), fmt.Sprintf("%s (%d rows)", t.Name, t.Len))
	}
	return res, nil
}
