package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"pedestrian_staging/config"
)

func TestSpanRecordsOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p, err := Setup(context.Background(), config.TracingConfig{ServiceName: "test"}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	tracer := p.Tracer()
	require.NoError(t, Span(context.Background(), tracer, "load", func(ctx context.Context) error {
		return nil
	}, attribute.String("dataset", "sensor_location")))
	boom := errors.New("boom")
	assert.ErrorIs(t, Span(context.Background(), tracer, "stage", func(ctx context.Context) error {
		return boom
	}), boom)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "load", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("dataset", "sensor_location"))
	assert.Equal(t, "stage", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestSetupWithEndpoint(t *testing.T) {
	p, err := Setup(context.Background(), config.TracingConfig{
		Endpoint:    "localhost:4318",
		Insecure:    true,
		ServiceName: "test",
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
}
