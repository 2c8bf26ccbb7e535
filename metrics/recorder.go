// Package metrics records batch run metrics with Prometheus. A batch run is
// too short lived to be scraped, so metrics are pushed to a Pushgateway or
// written to a node_exporter textfile when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"pedestrian_staging/config"
	"pedestrian_staging/logger"
)

// Recorder collects the metrics of one pipeline run
type Recorder struct {
	registry *prometheus.Registry
	cfg      config.MetricsConfig

	stageDuration *prometheus.HistogramVec
	stageStatus   *prometheus.CounterVec
	pagesFetched  *prometheus.CounterVec
	rowsLoaded    *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
	runStatus     *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry
func NewRecorder(cfg config.MetricsConfig) *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		cfg:      cfg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		stageStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_status_total",
			Help: "Pipeline stages by outcome.",
		}, []string{"stage", "status"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_pages_fetched_total",
			Help: "Source pages fetched per dataset.",
		}, []string{"dataset"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_rows_loaded_total",
			Help: "Source rows loaded per dataset.",
		}, []string{"dataset"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_rows_written_total",
			Help: "Rows written per staged or derived table.",
		}, []string{"table"}),
		runStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"status"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}

	registry.MustRegister(
		r.stageDuration,
		r.stageStatus,
		r.pagesFetched,
		r.rowsLoaded,
		r.rowsWritten,
		r.runStatus,
		r.lastSuccess,
	)
	return r
}

// Registry returns the Prometheus registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}

// ObserveStage records the duration and outcome of a stage
func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	r.stageStatus.WithLabelValues(stage, status(err)).Inc()
}

// AddPage counts one fetched page and its rows
func (r *Recorder) AddPage(dataset string, rows int) {
	r.pagesFetched.WithLabelValues(dataset).Inc()
	r.rowsLoaded.WithLabelValues(dataset).Add(float64(rows))
}

// AddRowsWritten counts rows written to table
func (r *Recorder) AddRowsWritten(table string, rows int) {
	r.rowsWritten.WithLabelValues(table).Add(float64(rows))
}

// RunFinished records the outcome of the run
func (r *Recorder) RunFinished(err error) {
	r.runStatus.WithLabelValues(status(err)).Inc()
	if err == nil {
		r.lastSuccess.SetToCurrentTime()
	}
}

// Flush pushes the metrics to the Pushgateway and writes the textfile, as
// configured. Both are attempted even if one fails.
func (r *Recorder) Flush(ctx context.Context) error {
	var result error
	if r.cfg.PushgatewayURL != "" {
		err := push.New(r.cfg.PushgatewayURL, r.cfg.JobName).
			Gatherer(r.registry).
			PushContext(ctx)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("push metrics: %w", err))
		} else {
			logger.Debugf("Metrics pushed to %s\n", r.cfg.PushgatewayURL)
		}
	}
	if r.cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(r.cfg.TextfilePath, r.registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("write metrics textfile: %w", err))
		} else {
			logger.Debugf("Metrics written to %s\n", r.cfg.TextfilePath)
		}
	}
	return result
}
