// Package tracing sets up OpenTelemetry spans for pipeline stages
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"pedestrian_staging/config"
	"pedestrian_staging/logger"
)

const instrumentationName = "pedestrian_staging/pipeline"

// Provider owns the tracer provider of the process
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup creates a tracer provider. Spans are exported over OTLP/HTTP when an
// endpoint is configured and dropped otherwise. Extra options are appended,
// which lets tests attach their own span processor.
func Setup(ctx context.Context, cfg config.TracingConfig, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	options := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Endpoint != "" {
		clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		options = append(options, sdktrace.WithBatcher(exporter))
		logger.Debugf("Tracing exports to %s\n", cfg.Endpoint)
	}

	options = append(options, opts...)
	return &Provider{tp: sdktrace.NewTracerProvider(options...)}, nil
}

// Tracer returns the pipeline tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(instrumentationName)
}

// Shutdown flushes pending spans
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Span runs fn inside a span named name and records its error
func Span(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
