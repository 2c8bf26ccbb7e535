package models

// SensorAverage is the mean hourly count of one sensor over a filtered window
type SensorAverage struct {
	SensorID          int64   `mapstructure:"sensor_id"`
	AvgHourlyCounts   float64 `mapstructure:"avg_hourly_counts"`
	SensorDescription string  `mapstructure:"sensor_description"`
	Latitude          float64 `mapstructure:"latitude"`
	Longitude         float64 `mapstructure:"longitude"`
	Location          string  `mapstructure:"location"`
}

// LocationRank is a sensor's dense rank within one day or month, keyed by
// whichever period it was grouped on
type LocationRank struct {
	PeriodKey         string  `mapstructure:"period_key"`
	SensorID          int64   `mapstructure:"sensor_id"`
	AvgHourlyCounts   float64 `mapstructure:"avg_hourly_counts"`
	SensorDescription string  `mapstructure:"sensor_description"`
	Latitude          float64 `mapstructure:"latitude"`
	Longitude         float64 `mapstructure:"longitude"`
	Location          string  `mapstructure:"location"`
	Rank              int64   `mapstructure:"rank"`
}

// DailyLocationRank is a row of TOP_N_LOCATIONS_BY_DAY
type DailyLocationRank struct {
	DateKey           string  `gorm:"column:date_key" mapstructure:"date_key" json:"date_key" parquet:"name=date_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	SensorID          int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id" parquet:"name=sensor_id, type=INT64"`
	AvgHourlyCounts   float64 `gorm:"column:avg_hourly_counts" mapstructure:"avg_hourly_counts" json:"avg_hourly_counts" parquet:"name=avg_hourly_counts, type=DOUBLE"`
	SensorDescription string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description" parquet:"name=sensor_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude          float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude" parquet:"name=latitude, type=DOUBLE"`
	Longitude         float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude" parquet:"name=longitude, type=DOUBLE"`
	Location          string  `gorm:"column:location" mapstructure:"location" json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rank              int64   `gorm:"column:rank" mapstructure:"rank" json:"rank" parquet:"name=rank, type=INT64"`
}

// MonthlyLocationRank is a row of TOP_N_LOCATIONS_BY_MONTH
type MonthlyLocationRank struct {
	MonthKey          string  `gorm:"column:month_key" mapstructure:"month_key" json:"month_key" parquet:"name=month_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	SensorID          int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id" parquet:"name=sensor_id, type=INT64"`
	AvgHourlyCounts   float64 `gorm:"column:avg_hourly_counts" mapstructure:"avg_hourly_counts" json:"avg_hourly_counts" parquet:"name=avg_hourly_counts, type=DOUBLE"`
	SensorDescription string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description" parquet:"name=sensor_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude          float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude" parquet:"name=latitude, type=DOUBLE"`
	Longitude         float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude" parquet:"name=longitude, type=DOUBLE"`
	Location          string  `gorm:"column:location" mapstructure:"location" json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rank              int64   `gorm:"column:rank" mapstructure:"rank" json:"rank" parquet:"name=rank, type=INT64"`
}

// LockdownDecline compares a sensor's pre-covid average with its lockdown average
type LockdownDecline struct {
	SensorID                int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id" parquet:"name=sensor_id, type=INT64"`
	SensorDescription       string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description" parquet:"name=sensor_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude                float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude" parquet:"name=latitude, type=DOUBLE"`
	Longitude               float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude" parquet:"name=longitude, type=DOUBLE"`
	Location                string  `gorm:"column:location" mapstructure:"location" json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	PrecovidAvgHourlyCounts float64 `gorm:"column:precovid_avg_hourly_counts" mapstructure:"precovid_avg_hourly_counts" json:"precovid_avg_hourly_counts" parquet:"name=precovid_avg_hourly_counts, type=DOUBLE"`
	LockdownAvgHourlyCounts float64 `gorm:"column:lockdown_avg_hourly_counts" mapstructure:"lockdown_avg_hourly_counts" json:"lockdown_avg_hourly_counts" parquet:"name=lockdown_avg_hourly_counts, type=DOUBLE"`
	DeclinedAvgHourlyCounts float64 `gorm:"column:declined_avg_hourly_counts" mapstructure:"declined_avg_hourly_counts" json:"declined_avg_hourly_counts" parquet:"name=declined_avg_hourly_counts, type=DOUBLE"`
	PercentDecline          float64 `gorm:"column:percent_decline" mapstructure:"percent_decline" json:"percent_decline" parquet:"name=percent_decline, type=DOUBLE"`
}

// LockdownGrowth compares a sensor's post-lockdown average with its lockdown average
type LockdownGrowth struct {
	SensorID                     int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id" parquet:"name=sensor_id, type=INT64"`
	SensorDescription            string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description" parquet:"name=sensor_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude                     float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude" parquet:"name=latitude, type=DOUBLE"`
	Longitude                    float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude" parquet:"name=longitude, type=DOUBLE"`
	Location                     string  `gorm:"column:location" mapstructure:"location" json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	AfterLockdownAvgHourlyCounts float64 `gorm:"column:after_lockdown_avg_hourly_counts" mapstructure:"after_lockdown_avg_hourly_counts" json:"after_lockdown_avg_hourly_counts" parquet:"name=after_lockdown_avg_hourly_counts, type=DOUBLE"`
	LockdownAvgHourlyCounts      float64 `gorm:"column:lockdown_avg_hourly_counts" mapstructure:"lockdown_avg_hourly_counts" json:"lockdown_avg_hourly_counts" parquet:"name=lockdown_avg_hourly_counts, type=DOUBLE"`
	GrowthAvgHourlyCounts        float64 `gorm:"column:growth_avg_hourly_counts" mapstructure:"growth_avg_hourly_counts" json:"growth_avg_hourly_counts" parquet:"name=growth_avg_hourly_counts, type=DOUBLE"`
	PercentGrowth                float64 `gorm:"column:percent_growth" mapstructure:"percent_growth" json:"percent_growth" parquet:"name=percent_growth, type=DOUBLE"`
}

// DayTimePattern is a sensor's mean count for one weekday and hour
type DayTimePattern struct {
	SensorID          int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id" parquet:"name=sensor_id, type=INT64"`
	Day               string  `gorm:"column:day" mapstructure:"day" json:"day" parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time              int64   `gorm:"column:time" mapstructure:"time" json:"time" parquet:"name=time, type=INT64"`
	AvgHourlyCounts   float64 `gorm:"column:avg_hourly_counts" mapstructure:"avg_hourly_counts" json:"avg_hourly_counts" parquet:"name=avg_hourly_counts, type=DOUBLE"`
	SensorDescription string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description" parquet:"name=sensor_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude          float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude" parquet:"name=latitude, type=DOUBLE"`
	Longitude         float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude" parquet:"name=longitude, type=DOUBLE"`
	Location          string  `gorm:"column:location" mapstructure:"location" json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// DayTypePattern is a sensor's mean count for weekdays or weekends at one hour
type DayTypePattern struct {
	SensorID          int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id" parquet:"name=sensor_id, type=INT64"`
	DayType           string  `gorm:"column:day_type" mapstructure:"day_type" json:"day_type" parquet:"name=day_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time              int64   `gorm:"column:time" mapstructure:"time" json:"time" parquet:"name=time, type=INT64"`
	AvgHourlyCounts   float64 `gorm:"column:avg_hourly_counts" mapstructure:"avg_hourly_counts" json:"avg_hourly_counts" parquet:"name=avg_hourly_counts, type=DOUBLE"`
	SensorDescription string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description" parquet:"name=sensor_description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude          float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude" parquet:"name=latitude, type=DOUBLE"`
	Longitude         float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude" parquet:"name=longitude, type=DOUBLE"`
	Location          string  `gorm:"column:location" mapstructure:"location" json:"location" parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
}
