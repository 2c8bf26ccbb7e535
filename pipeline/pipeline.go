// Package pipeline runs the load, enrich, stage and compute stages end to end
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gorm.io/gorm"

	"pedestrian_staging/config"
	"pedestrian_staging/database"
	"pedestrian_staging/enrich"
	"pedestrian_staging/export"
	"pedestrian_staging/loader"
	"pedestrian_staging/logger"
	"pedestrian_staging/metrics"
	"pedestrian_staging/models"
	"pedestrian_staging/profile"
	"pedestrian_staging/stats"
	"pedestrian_staging/store"
	"pedestrian_staging/tracing"
)

// Dataset labels used in logs, metrics and report names
const (
	DatasetHourlyCounts   = "pedestrian per hour"
	DatasetSensorLocation = "sensor location"
)

// Deps are the collaborators of a pipeline. Store and Ledger default to
// ones built on DB; Recorder, Tracer and Exporter are optional.
type Deps struct {
	Config        *config.Config
	DB            *gorm.DB
	Store         *store.Store
	Ledger        *database.RunLedger
	Recorder      *metrics.Recorder
	Tracer        trace.Tracer
	Exporter      *export.ParquetExporter
	LoaderOptions []loader.Option
}

// Pipeline is one configured staging pipeline
type Pipeline struct {
	cfg      *config.Config
	store    *store.Store
	engine   *stats.Engine
	ledger   *database.RunLedger
	recorder *metrics.Recorder
	tracer   trace.Tracer
	exporter *export.ParquetExporter
	rawMode  store.Mode
	loadOpts []loader.Option
}

// New creates a pipeline from its dependencies
func New(d Deps) (*Pipeline, error) {
	if d.Config == nil || d.DB == nil {
		return nil, errors.New("pipeline needs a configuration and a database")
	}
	rawMode, err := store.ParseMode(d.Config.Pipeline.RawWriteMode)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      d.Config,
		store:    d.Store,
		ledger:   d.Ledger,
		recorder: d.Recorder,
		tracer:   d.Tracer,
		exporter: d.Exporter,
		rawMode:  rawMode,
		loadOpts: d.LoaderOptions,
	}
	if p.store == nil {
		p.store = store.New(d.DB)
	}
	if p.ledger == nil {
		p.ledger = database.NewRunLedger(d.DB)
	}
	p.engine = stats.NewEngine(p.store, stats.WithTopN(d.Config.Pipeline.TopN))
	if p.recorder == nil {
		p.recorder = metrics.NewRecorder(d.Config.Metrics)
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("")
	}
	return p, nil
}

// Store returns the staging store the pipeline writes to
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// Run executes every stage once and records the run in the ledger.
// The returned run is nil only if the ledger itself could not be written.
func (p *Pipeline) Run(ctx context.Context) (*database.PipelineRun, error) {
	run, err := p.ledger.Start(ctx)
	if err != nil {
		return nil, err
	}
	logger.Printf("Pipeline run %s started\n", run.RunID)

	runErr := tracing.Span(ctx, p.tracer, "pipeline.run", func(ctx context.Context) error {
		return p.execute(ctx, run)
	}, attribute.String("run.id", run.RunID))

	// The outcome is recorded even when ctx was cancelled by an interrupt
	recordCtx := context.WithoutCancel(ctx)
	p.recorder.RunFinished(runErr)
	if err := p.ledger.Finish(recordCtx, run, runErr); err != nil {
		logger.Errorf("Failed to record run %s: %v\n", run.RunID, err)
		if runErr == nil {
			runErr = err
		}
	}
	if err := p.recorder.Flush(recordCtx); err != nil {
		logger.Warnf("Failed to flush metrics: %v\n", err)
	}

	logger.LogResult("Pipeline run "+run.RunID, runErr == nil, fmt.Sprintf("%d sensors, %d counts, %d derived rows",
		run.SensorRows, run.CountRows, run.DerivedRows))
	return run, runErr
}

func (p *Pipeline) execute(ctx context.Context, run *database.PipelineRun) error {
	counts, err := p.hourlyCounts(ctx)
	if err != nil {
		return err
	}
	if err := p.stageRecords(ctx, models.HourlyCountTable, counts); err != nil {
		return err
	}
	run.CountRows = int64(len(counts))

	sensors, err := p.sensorLocations(ctx)
	if err != nil {
		return err
	}
	if err := p.stageRecords(ctx, models.SensorTable, sensors); err != nil {
		return err
	}
	run.SensorRows = int64(len(sensors))

	var results *stats.Results
	err = p.stage(ctx, "compute statistics", func(ctx context.Context) error {
		computed, err := p.engine.ComputeAll(ctx)
		results = computed
		return err
	})
	if err != nil {
		return err
	}
	for _, t := range results.Tables() {
		p.recorder.AddRowsWritten(t.Name, t.Len)
		run.DerivedRows += int64(t.Len)
	}

	if p.exporter == nil {
		return nil
	}
	return p.stage(ctx, "export statistics", func(ctx context.Context) error {
		return p.exporter.Export(ctx, results.Tables())
	})
}

func (p *Pipeline) hourlyCounts(ctx context.Context) ([]models.HourlyCount, error) {
	table, err := p.load(ctx, DatasetHourlyCounts, p.cfg.Source.HourlyCountsURL)
	if err != nil {
		return nil, err
	}

	var counts []models.HourlyCount
	err = p.stage(ctx, "enrich "+DatasetHourlyCounts, func(context.Context) error {
		decoded, err := loader.DecodeHourlyCounts(table)
		if err != nil {
			return err
		}
		counts = decoded
		return enrich.EnrichHourlyCounts(counts)
	})
	return counts, err
}

func (p *Pipeline) sensorLocations(ctx context.Context) ([]models.SensorLocation, error) {
	table, err := p.load(ctx, DatasetSensorLocation, p.cfg.Source.SensorLocationURL)
	if err != nil {
		return nil, err
	}

	var sensors []models.SensorLocation
	err = p.stage(ctx, "wrangle "+DatasetSensorLocation, func(context.Context) error {
		decoded, err := loader.DecodeSensorLocations(table)
		if err != nil {
			return err
		}
		sensors = decoded
		return enrich.WrangleSensorLocations(sensors)
	})
	return sensors, err
}

// load fetches a dataset and writes its profiling report when enabled
func (p *Pipeline) load(ctx context.Context, dataset, endpoint string) (*loader.Table, error) {
	l := p.newLoader(dataset)

	var table *loader.Table
	err := p.stage(ctx, "load "+dataset, func(ctx context.Context) error {
		var err error
		table, err = l.Load(ctx, endpoint)
		return err
	}, attribute.String("endpoint", endpoint))
	if err != nil {
		return nil, err
	}

	if !p.cfg.Profiling.Enabled {
		return table, nil
	}
	err = p.stage(ctx, "profile "+dataset, func(context.Context) error {
		path, err := profile.Build(dataset, table).WriteFile(p.cfg.Profiling.ReportDir)
		if err == nil {
			logger.Printf("Profiling report written to %s\n", path)
		}
		return err
	})
	return table, err
}

func (p *Pipeline) newLoader(dataset string) *loader.Loader {
	src := p.cfg.Source
	opts := []loader.Option{
		loader.WithPageSize(src.PageSize),
		loader.WithTimeout(src.Timeout()),
		loader.WithRetry(src.MaxAttempts, src.RetryInterval()),
		loader.WithPageObserver(func(ps loader.PageStat) {
			p.recorder.AddPage(dataset, ps.Rows)
			logger.Debugf("%s: offset %d, %d rows, %d attempt(s), %v\n", dataset, ps.Offset, ps.Rows, ps.Attempts, ps.Elapsed)
		}),
	}
	return loader.New(append(opts, p.loadOpts...)...)
}

func (p *Pipeline) stageRecords(ctx context.Context, table string, records any) error {
	return p.stage(ctx, "stage "+table, func(ctx context.Context) error {
		frame, err := store.FrameOf(records)
		if err != nil {
			return fmt.Errorf("failed to build frame for %s: %w", table, err)
		}
		if err := p.store.Write(ctx, table, frame, p.rawMode); err != nil {
			return err
		}
		p.recorder.AddRowsWritten(table, frame.Len())
		return nil
	}, attribute.String("table", table))
}

// stage runs fn as a logged, timed and traced pipeline stage
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	return tracing.Span(ctx, p.tracer, name, func(ctx context.Context) error {
		elapsed, err := logger.LogStage(name, func() error { return fn(ctx) })
		p.recorder.ObserveStage(name, elapsed, err)
		return err
	}, attrs...)
}
