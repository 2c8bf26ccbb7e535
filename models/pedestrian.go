package models

// Staged table names
const (
	SensorTable         = "SENSOR"
	HourlyCountTable    = "PEDESTRIAN_PER_HOUR"
	TopNByDayTable      = "TOP_N_LOCATIONS_BY_DAY"
	TopNByMonthTable    = "TOP_N_LOCATIONS_BY_MONTH"
	DeclineTable        = "HOURLY_COUNTS_DECLINE_LOCKDOWN"
	GrowthTable         = "HOURLY_COUNTS_GROWTH_AFTER_LOCKDOWN"
	ByDayTimeTable      = "AVG_HOURLY_COUNTS_BY_DAY_TIME"
	WeekdayWeekendTable = "AVG_HOURLY_COUNTS_WEEKDAY_WEEKEND"
)

// DerivedTables lists the statistics tables in the order they are computed
var DerivedTables = []string{
	TopNByDayTable,
	TopNByMonthTable,
	DeclineTable,
	GrowthTable,
	ByDayTimeTable,
	WeekdayWeekendTable,
}

// IsDerivedTable reports whether name is one of the statistics tables
func IsDerivedTable(name string) bool {
	for _, t := range DerivedTables {
		if t == name {
			return true
		}
	}
	return false
}

// SensorLocation is one physical pedestrian sensor
type SensorLocation struct {
	SensorID          int64   `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id"`
	SensorDescription string  `gorm:"column:sensor_description" mapstructure:"sensor_description" json:"sensor_description"`
	SensorName        string  `gorm:"column:sensor_name" mapstructure:"sensor_name" json:"sensor_name"`
	Status            string  `gorm:"column:status" mapstructure:"status" json:"status"`
	Latitude          float64 `gorm:"column:latitude" mapstructure:"latitude" json:"latitude"`
	Longitude         float64 `gorm:"column:longitude" mapstructure:"longitude" json:"longitude"`
	Location          string  `gorm:"column:location" mapstructure:"location" json:"location"`
}

// HourlyCount is one hourly pedestrian count reported by a sensor
type HourlyCount struct {
	ID           int64  `gorm:"column:id" mapstructure:"id" json:"id"`
	DateTime     string `gorm:"column:date_time" mapstructure:"date_time" json:"date_time"`
	Year         int64  `gorm:"column:year" mapstructure:"year" json:"year"`
	Month        string `gorm:"column:month" mapstructure:"month" json:"month"`
	MDate        int64  `gorm:"column:mdate" mapstructure:"mdate" json:"mdate"`
	Day          string `gorm:"column:day" mapstructure:"day" json:"day"`
	Time         int64  `gorm:"column:time" mapstructure:"time" json:"time"`
	SensorID     int64  `gorm:"column:sensor_id" mapstructure:"sensor_id" json:"sensor_id"`
	SensorName   string `gorm:"column:sensor_name" mapstructure:"sensor_name" json:"sensor_name"`
	HourlyCounts int64  `gorm:"column:hourly_counts" mapstructure:"hourly_counts" json:"hourly_counts"`

	// Derived during enrichment
	DateKey  string `gorm:"column:date_key" mapstructure:"date_key" json:"date_key"`
	MonthKey string `gorm:"column:month_key" mapstructure:"month_key" json:"month_key"`
	DayType  string `gorm:"column:day_type" mapstructure:"day_type" json:"day_type"`
}
