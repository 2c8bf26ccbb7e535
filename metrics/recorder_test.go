package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedestrian_staging/config"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder(config.MetricsConfig{JobName: "test"})

	r.AddPage("hourly_counts", 50000)
	r.AddPage("hourly_counts", 10)
	r.AddRowsWritten("SENSOR", 3)
	r.ObserveStage("load", time.Second, nil)
	r.ObserveStage("stage", time.Second, errors.New("boom"))
	r.RunFinished(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.pagesFetched.WithLabelValues("hourly_counts")))
	assert.Equal(t, 50010.0, testutil.ToFloat64(r.rowsLoaded.WithLabelValues("hourly_counts")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.rowsWritten.WithLabelValues("SENSOR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageStatus.WithLabelValues("stage", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runStatus.WithLabelValues("succeeded")))
	assert.Greater(t, testutil.ToFloat64(r.lastSuccess), 0.0)
}

func TestFlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.prom")
	r := NewRecorder(config.MetricsConfig{JobName: "test", TextfilePath: path})
	r.RunFinished(errors.New("boom"))

	require.NoError(t, r.Flush(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pipeline_runs_total{status="failed"} 1`)
}

func TestFlushPushesToGateway(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder(config.MetricsConfig{JobName: "pedestrian_staging", PushgatewayURL: srv.URL})
	r.AddRowsWritten("SENSOR", 1)

	require.NoError(t, r.Flush(context.Background()))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/pedestrian_staging"), gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestFlushReportsEveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRecorder(config.MetricsConfig{
		JobName:        "test",
		PushgatewayURL: srv.URL,
		TextfilePath:   filepath.Join(t.TempDir(), "missing", "dir", "pipeline.prom"),
	})
	err := r.Flush(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
	assert.Contains(t, err.Error(), "write metrics textfile")
}
