package main

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"pedestrian_staging/config"
	"pedestrian_staging/database"
	"pedestrian_staging/export"
	"pedestrian_staging/metrics"
	"pedestrian_staging/pipeline"
	"pedestrian_staging/store"
	"pedestrian_staging/tracing"
)

// ApplicationOptions builds the fx options wiring every component from cfg
func ApplicationOptions(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			newDatabase,
			store.New,
			database.NewRunLedger,
			newRecorder,
			newTracing,
			newTracer,
			newExporter,
			newPipeline,
		),
	}
}

func newDatabase(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return database.Close(db) },
	})
	return db, nil
}

func newRecorder(cfg *config.Config) *metrics.Recorder {
	return metrics.NewRecorder(cfg.Metrics)
}

func newTracing(lc fx.Lifecycle, cfg *config.Config) (*tracing.Provider, error) {
	p, err := tracing.Setup(context.Background(), cfg.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: p.Shutdown})
	return p, nil
}

func newTracer(p *tracing.Provider) trace.Tracer {
	return p.Tracer()
}

// newExporter returns nil when no export destination is configured
func newExporter(lc fx.Lifecycle, cfg *config.Config) (*export.ParquetExporter, error) {
	if cfg.Export.Destination == "" {
		return nil, nil
	}
	sink, err := export.NewSink(context.Background(), cfg.Export.Destination)
	if err != nil {
		return nil, err
	}
	exp, err := export.NewParquetExporter(sink, cfg.Export.Compression)
	if err != nil {
		sink.Close()
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return exp.Close() },
	})
	return exp, nil
}

type pipelineParams struct {
	fx.In

	Config   *config.Config
	DB       *gorm.DB
	Store    *store.Store
	Ledger   *database.RunLedger
	Recorder *metrics.Recorder
	Tracer   trace.Tracer
	Exporter *export.ParquetExporter
}

func newPipeline(p pipelineParams) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Deps{
		Config:   p.Config,
		DB:       p.DB,
		Store:    p.Store,
		Ledger:   p.Ledger,
		Recorder: p.Recorder,
		Tracer:   p.Tracer,
		Exporter: p.Exporter,
	})
}
