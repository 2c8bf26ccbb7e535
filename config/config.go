package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds all database configuration
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"`
	MySQL          MySQLConfig    `yaml:"mysql"`
	PostgreSQL     PostgresConfig `yaml:"postgres"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	ConnectionPool PoolConfig     `yaml:"connection_pool"`
}

// MySQLConfig holds MySQL specific configuration
type MySQLConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`
}

// PostgresConfig holds PostgreSQL specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// SQLiteConfig holds SQLite specific configuration.
// Engine selects the cgo driver ("cgo") or the pure Go one ("pure").
type SQLiteConfig struct {
	Path   string `yaml:"path"`
	Engine string `yaml:"engine"`
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxIdleConns    int `yaml:"max_idle_conns"`
	MaxOpenConns    int `yaml:"max_open_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// SourceConfig holds the paged CSV endpoints and how to fetch them
type SourceConfig struct {
	SensorLocationURL string `yaml:"sensor_location_url"`
	HourlyCountsURL   string `yaml:"hourly_counts_url"`
	PageSize          int    `yaml:"page_size"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryIntervalMs   int    `yaml:"retry_interval_ms"`
}

// Timeout returns the per-request timeout
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryInterval returns the initial backoff interval between page attempts
func (s SourceConfig) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalMs) * time.Millisecond
}

// PipelineConfig holds run behaviour
type PipelineConfig struct {
	// RawWriteMode is the write mode for SENSOR and PEDESTRIAN_PER_HOUR
	RawWriteMode string `yaml:"raw_write_mode"`
	// TopN keeps only ranks <= TopN in the top locations tables when positive
	TopN int `yaml:"top_n"`
}

// ProfilingConfig holds profiling report configuration
type ProfilingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ReportDir string `yaml:"report_dir"`
}

// ExportConfig holds parquet export configuration.
// Destination is a local directory or a gs://bucket/prefix location; empty disables export.
type ExportConfig struct {
	Destination string `yaml:"destination"`
	Compression string `yaml:"compression"`
}

// MetricsConfig holds batch metrics configuration
type MetricsConfig struct {
	JobName        string `yaml:"job_name"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	TextfilePath   string `yaml:"textfile_path"`
}

// TracingConfig holds OTLP trace export configuration
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// ServerConfig holds the read API configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	LogFile      string `yaml:"log_file"`
	LogToConsole bool   `yaml:"log_to_console"`
	LogLevel     string `yaml:"log_level"`
}

// Config holds the complete application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Source    SourceConfig    `yaml:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Profiling ProfilingConfig `yaml:"profiling"`
	Export    ExportConfig    `yaml:"export"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

const (
	DefaultSensorLocationURL = "https://data.melbourne.vic.gov.au/resource/h57g-5234.csv"
	DefaultHourlyCountsURL   = "https://data.melbourne.vic.gov.au/resource/b2ak-trbp.csv"
	DefaultPageSize          = 50000
)

// Load loads configuration from the specified YAML file.
// A .env file next to the working directory is loaded first and ${VAR}
// placeholders in the YAML are expanded from the environment.
func Load(configPath string) (*Config, error) {
	// Set default config path if not provided
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Missing .env is fine
	_ = godotenv.Load()

	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration bytes, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	// Parse the YAML
	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "result.log"
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
	if c.Database.SQLite.Engine == "" {
		c.Database.SQLite.Engine = "cgo"
	}
	if c.Source.SensorLocationURL == "" {
		c.Source.SensorLocationURL = DefaultSensorLocationURL
	}
	if c.Source.HourlyCountsURL == "" {
		c.Source.HourlyCountsURL = DefaultHourlyCountsURL
	}
	if c.Source.PageSize == 0 {
		c.Source.PageSize = DefaultPageSize
	}
	if c.Source.TimeoutSeconds == 0 {
		c.Source.TimeoutSeconds = 60
	}
	if c.Source.MaxAttempts == 0 {
		c.Source.MaxAttempts = 3
	}
	if c.Source.RetryIntervalMs == 0 {
		c.Source.RetryIntervalMs = 500
	}
	if c.Pipeline.RawWriteMode == "" {
		c.Pipeline.RawWriteMode = "replace"
	}
	if c.Profiling.ReportDir == "" {
		c.Profiling.ReportDir = "."
	}
	if c.Export.Compression == "" {
		c.Export.Compression = "SNAPPY"
	}
	if c.Metrics.JobName == "" {
		c.Metrics.JobName = "pedestrian_staging"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pedestrian_staging"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql host is required")
		}
		if c.Database.MySQL.User == "" {
			return fmt.Errorf("mysql user is required")
		}
		if c.Database.MySQL.DBName == "" {
			return fmt.Errorf("mysql database name is required")
		}
	case "postgres":
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Database.PostgreSQL.User == "" {
			return fmt.Errorf("postgres user is required")
		}
		if c.Database.PostgreSQL.DBName == "" {
			return fmt.Errorf("postgres database name is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
		if c.Database.SQLite.Engine != "cgo" && c.Database.SQLite.Engine != "pure" {
			return fmt.Errorf("unsupported sqlite engine: %s", c.Database.SQLite.Engine)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Source.PageSize < 1 {
		return fmt.Errorf("source page size must be positive")
	}
	if c.Source.MaxAttempts < 1 {
		return fmt.Errorf("source max attempts must be at least 1")
	}
	switch c.Pipeline.RawWriteMode {
	case "fail", "replace", "append":
	default:
		return fmt.Errorf("unsupported raw write mode: %s", c.Pipeline.RawWriteMode)
	}
	if c.Pipeline.TopN < 0 {
		return fmt.Errorf("top_n must not be negative")
	}
	if strings.HasPrefix(c.Export.Destination, "gs://") && strings.TrimPrefix(c.Export.Destination, "gs://") == "" {
		return fmt.Errorf("export destination is missing a bucket name")
	}

	return nil
}

// GetDSN returns the database connection string based on the configured driver
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "mysql":
		mysql := c.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
			mysql.User, mysql.Password, mysql.Host, mysql.Port, mysql.DBName,
			mysql.Charset, mysql.ParseTime, mysql.Loc)
		return dsn
	case "postgres":
		pg := c.Database.PostgreSQL
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode, pg.TimeZone)
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}
