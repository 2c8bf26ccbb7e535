package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"

	"pedestrian_staging/config"
	"pedestrian_staging/database"
	"pedestrian_staging/export"
	"pedestrian_staging/metrics"
	"pedestrian_staging/models"
	"pedestrian_staging/pipeerr"
	"pedestrian_staging/store"
	"pedestrian_staging/tracing"
)

const sensorCSV = `sensor_id,sensor_description,sensor_name,status,latitude,longitude,location
1,Bourke Street Mall (North),Bou292_T,A,-37.81349441,144.96515323,"\n   (-37.81349441, 144.96515323)"
2,Town Hall (West),Swa123_T,A,-37.81487988,144.9660878,"\n   (-37.81487988, 144.9660878)"
3,Princes Bridge,PriNW_T,A,-37.81874249,144.96787656,"\n   (-37.81874249, 144.96787656)"
`

func countsCSV() string {
	var b strings.Builder
	b.WriteString("id,date_time,year,month,mdate,day,time,sensor_id,sensor_name,hourly_counts\n")
	id := 1
	add := func(dateTime, day string, sensor, n int) {
		fmt.Fprintf(&b, "%d,%s,%s,Month,1,%s,8,%d,Sensor,%d\n", id, dateTime, dateTime[:4], day, sensor, n)
		id++
	}
	for sensor := 1; sensor <= 3; sensor++ {
		add("2020-01-04T08:00:00.000", "Saturday", sensor, 100*sensor)
		add("2020-04-01T08:00:00.000", "Wednesday", sensor, 60*sensor)
		add("2021-11-01T08:00:00.000", "Monday", sensor, 90*sensor)
	}
	return b.String()
}

// csvSource pages a fixed CSV document the way the open data API does
func csvSource(t *testing.T, docs map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		lines := strings.SplitAfter(strings.TrimSuffix(doc, "\n"), "\n")
		limit, _ := strconv.Atoi(r.URL.Query().Get("$limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))

		body := lines[0]
		rows := lines[1:]
		for i := offset; i < len(rows) && i < offset+limit; i++ {
			body += strings.TrimSuffix(rows[i], "\n") + "\n"
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srvURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STAGING_DIR", dir)
	t.Setenv("SOURCE_URL", srvURL)

	cfg, err := config.Parse([]byte(`
database:
  driver: sqlite
  sqlite:
    path: ${STAGING_DIR}/staging.db
    engine: pure
  connection_pool:
    max_open_conns: 1
source:
  sensor_location_url: ${SOURCE_URL}/sensors.csv
  hourly_counts_url: ${SOURCE_URL}/counts.csv
  page_size: 4
  max_attempts: 1
profiling:
  enabled: true
  report_dir: ${STAGING_DIR}/reports
metrics:
  textfile_path: ${STAGING_DIR}/pipeline.prom
logging:
  log_file: ${STAGING_DIR}/result.log
`))
	require.NoError(t, err)
	return cfg
}

func TestRunStagesAndComputesEverything(t *testing.T) {
	srv := csvSource(t, map[string]string{"/sensors.csv": sensorCSV, "/counts.csv": countsCSV()})
	cfg := testConfig(t, srv.URL)
	dir := filepath.Dir(cfg.Database.SQLite.Path)

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	defer database.Close(db)

	spans := tracetest.NewSpanRecorder()
	provider, err := tracing.Setup(context.Background(), cfg.Tracing, sdktrace.WithSpanProcessor(spans))
	require.NoError(t, err)

	exporter, err := export.NewParquetExporter(export.NewLocalSink(filepath.Join(dir, "parquet")), "SNAPPY")
	require.NoError(t, err)

	p, err := New(Deps{
		Config:   cfg,
		DB:       db,
		Recorder: metrics.NewRecorder(cfg.Metrics),
		Tracer:   provider.Tracer(),
		Exporter: exporter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	run, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, database.RunSucceeded, run.Status)
	assert.Equal(t, int64(9), run.CountRows)
	assert.Equal(t, int64(3), run.SensorRows)
	assert.Positive(t, run.DerivedRows)

	for _, table := range append([]string{models.SensorTable, models.HourlyCountTable}, models.DerivedTables...) {
		ok, err := p.Store().HasTable(ctx, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}

	frame, err := p.Store().Query(ctx, "SELECT date_key, month_key, day_type FROM PEDESTRIAN_PER_HOUR WHERE id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, []any{"20200104", "202001", "Weekend"}, frame.Rows[0])

	frame, err = p.Store().Query(ctx, "SELECT location FROM SENSOR WHERE sensor_id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, "(-37.81349441, 144.96515323)", frame.Rows[0][0])

	frame, err = p.Store().Query(ctx, "SELECT sensor_id, percent_decline FROM HOURLY_COUNTS_DECLINE_LOCKDOWN ORDER BY sensor_id")
	require.NoError(t, err)
	require.Len(t, frame.Rows, 3)
	assert.InDelta(t, 40.0, frame.Rows[0][1], 1e-9)

	for _, name := range []string{"data profiling pedestrian per hour.html", "data profiling sensor location.html"} {
		_, err := os.Stat(filepath.Join(cfg.Profiling.ReportDir, name))
		assert.NoError(t, err, name)
	}
	parquetFiles, err := filepath.Glob(filepath.Join(dir, "parquet", "dt=*", "*.parquet"))
	require.NoError(t, err)
	assert.Len(t, parquetFiles, len(models.DerivedTables))

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `pipeline_pages_fetched_total{dataset="pedestrian per hour"} 3`)

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "pipeline.run")
	assert.Contains(t, names, "stage PEDESTRIAN_PER_HOUR")

	// a second run replaces every table
	_, err = p.Run(ctx)
	require.NoError(t, err)
	n, err := p.Store().Count(ctx, models.HourlyCountTable)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestRunRecordsFailure(t *testing.T) {
	srv := csvSource(t, map[string]string{"/sensors.csv": sensorCSV})
	cfg := testConfig(t, srv.URL)

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	defer database.Close(db)

	p, err := New(Deps{Config: cfg, DB: db})
	require.NoError(t, err)

	run, err := p.Run(context.Background())

	var netErr *pipeerr.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	assert.Equal(t, database.RunFailed, run.Status)

	runs, err := database.NewRunLedger(db).Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "status 404")
}

func TestNewRejectsUnknownWriteMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.RawWriteMode = "upsert"
	_, err := New(Deps{Config: cfg, DB: &gorm.DB{}})
	assert.ErrorContains(t, err, "upsert")

	_, err = New(Deps{Config: cfg})
	assert.Error(t, err)
}

func TestRunRecordsInterruptedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// interrupt arrives while the first page is in flight
		cancel()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	cfg := testConfig(t, srv.URL)

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	defer database.Close(db)

	p, err := New(Deps{Config: cfg, DB: db})
	require.NoError(t, err)

	run, err := p.Run(ctx)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, database.RunFailed, run.Status)

	runs, err := database.NewRunLedger(db).Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestNewUsesInjectedStoreAndLedger(t *testing.T) {
	srv := csvSource(t, map[string]string{"/sensors.csv": sensorCSV, "/counts.csv": countsCSV()})
	cfg := testConfig(t, srv.URL)

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	defer database.Close(db)

	st := store.New(db)
	ledger := database.NewRunLedger(db)
	p, err := New(Deps{Config: cfg, DB: db, Store: st, Ledger: ledger})
	require.NoError(t, err)
	assert.Same(t, st, p.Store())

	run, err := p.Run(context.Background())
	require.NoError(t, err)
	runs, err := ledger.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
}
