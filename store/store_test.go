package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pedestrian_staging/models"
	"pedestrian_staging/pipeerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return New(db)
}

func sensorFrame(t *testing.T, ids ...int64) *Frame {
	t.Helper()
	var sensors []models.SensorLocation
	for _, id := range ids {
		sensors = append(sensors, models.SensorLocation{
			SensorID:          id,
			SensorDescription: "Bourke Street Mall",
			Latitude:          -37.81,
			Longitude:         144.96,
			Location:          "(-37.81, 144.96)",
		})
	}
	frame, err := FrameOf(sensors)
	require.NoError(t, err)
	return frame
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"fail": ModeFail, "Replace": ModeReplace, " append ": ModeAppend} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("upsert")
	assert.Error(t, err)
}

func TestWriteReplaceAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2), ModeReplace))

	frame, err := s.Query(ctx, "SELECT location, sensor_id FROM SENSOR ORDER BY sensor_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"location", "sensor_id"}, frame.ColumnNames())
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, int64(1), frame.Rows[0][1])
	assert.Equal(t, KindInteger, frame.Columns[1].Kind)
	assert.Equal(t, KindText, frame.Columns[0].Kind)

	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 7), ModeReplace))
	n, err := s.Count(ctx, models.SensorTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWriteFailLeavesExistingTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2, 3), ModeFail))

	err := s.Write(ctx, models.SensorTable, sensorFrame(t, 9), ModeFail)
	require.Error(t, err)

	var storeErr *pipeerr.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, models.SensorTable, storeErr.Table)
	assert.ErrorIs(t, err, pipeerr.ErrTableExists)

	n, err := s.Count(ctx, models.SensorTable)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestWriteAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1), ModeAppend))
	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 2, 3), ModeAppend))

	n, err := s.Count(ctx, models.SensorTable)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestWriteInBatches(t *testing.T) {
	s := newTestStore(t)
	s.SetBatchSize(2)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2, 3, 4, 5), ModeReplace))

	n, err := s.Count(ctx, models.SensorTable)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestWriteEmptyFrameCreatesTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.DeclineTable, sensorFrame(t), ModeReplace))

	ok, err := s.HasTable(ctx, models.DeclineTable)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteRejectsBadIdentifiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Write(ctx, "SENSOR; DROP TABLE x", sensorFrame(t, 1), ModeReplace)
	var storeErr *pipeerr.StoreError
	assert.True(t, errors.As(err, &storeErr))

	bad := NewFrame(Column{Name: "a b", Kind: KindText})
	assert.Error(t, s.Write(ctx, "T", bad, ModeReplace))
	assert.Error(t, s.Write(ctx, "T", nil, ModeReplace))
}

func TestQueryRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2), ModeReplace))

	for _, query := range []string{
		"DELETE FROM SENSOR",
		"",
		"SELECT 1; DROP TABLE SENSOR",
		"SELECT 1;\nDELETE FROM SENSOR;",
		"WITH x AS (SELECT 1) DELETE FROM SENSOR",
		"with gone as (delete from SENSOR returning *) select * from gone",
		"SELECT * FROM SENSOR /* ; */ ; UPDATE SENSOR SET location = ''",
		"SELECT sensor_id INTO backup FROM SENSOR",
	} {
		_, err := s.Query(ctx, query)
		assert.ErrorIs(t, err, pipeerr.ErrNotReadOnly, query)
	}

	n, err := s.Count(ctx, models.SensorTable)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueryAcceptsKeywordsInsideLiteralsAndTrailingSemicolon(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2), ModeReplace))

	frame, err := s.Query(ctx, "SELECT 'drop; delete' AS note, sensor_id AS \"update\" FROM SENSOR -- ; insert\nORDER BY sensor_id;")
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, []string{"note", "update"}, frame.ColumnNames())
	assert.Equal(t, "drop; delete", frame.Rows[0][0])
}

func TestQueryLeavesConnectionWritable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1), ModeReplace))

	_, err := s.Query(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)
	_, err = s.Query(ctx, "SELECT sensor_id FROM SENSOR")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Query(cancelled, "SELECT sensor_id FROM SENSOR")
	require.Error(t, err)

	// the single pooled connection must still accept writes
	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2, 3), ModeAppend))
	n, err := s.Count(ctx, models.SensorTable)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestQueryBindsArguments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, models.SensorTable, sensorFrame(t, 1, 2, 3), ModeReplace))

	frame, err := s.Query(ctx, "SELECT sensor_id FROM SENSOR WHERE sensor_id > ? ORDER BY sensor_id", 1)
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, int64(2), frame.Rows[0][0])
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	t.Cleanup(func() { sqlDB.Close() })
	return New(db), mock
}

func TestQueryWrapsDriverErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("syntax error near FORM"))
	mock.ExpectRollback()

	_, err := s.Query(context.Background(), "SELECT * FORM SENSOR")

	var storeErr *pipeerr.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "query", storeErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPreservesColumnOrderAndDecodesDriverStrings(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"sensor_id", "avg_hourly_counts", "location"}).
		AddRow(int64(4), []byte("120.5000"), []byte("(-37.8, 144.9)")).
		AddRow(int64(9), []byte("80.2500"), []byte("(-37.7, 144.8)"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sensor_id").WillReturnRows(rows)
	mock.ExpectCommit()

	frame, err := s.Query(context.Background(), "SELECT sensor_id, avg_hourly_counts, location FROM stats")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"sensor_id", "avg_hourly_counts", "location"}, frame.ColumnNames())

	var averages []models.SensorAverage
	require.NoError(t, frame.Decode(&averages))
	require.Len(t, averages, 2)
	assert.Equal(t, int64(9), averages[1].SensorID)
	assert.InDelta(t, 80.25, averages[1].AvgHourlyCounts, 1e-9)
	assert.Equal(t, "(-37.8, 144.9)", averages[0].Location)
}
