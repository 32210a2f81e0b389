package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("catalogue-search"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, otel.GetTextMapPropagator())
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// The exporter never connects: batched export is asynchronous.
	cfg := DefaultConfig("catalogue-search")
	cfg.OTLPEndpoint = "127.0.0.1:0"
	cfg.Enabled = true

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected an SDK tracer provider, got %T", otel.GetTracerProvider())

	// Shutdown may report the unreachable endpoint.
	_ = shutdown(context.Background())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("catalogue-search")

	assert.Equal(t, "catalogue-search", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Sampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, Sampler(2).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, Sampler(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, Sampler(-1).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, Sampler(0.25).Description(), "root:TraceIDRatioBased")
}

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	_, span := tp.Tracer("test").Start(context.Background(), "failing")
	RecordError(span, errors.New("catalogue fetch failed"))
	span.End()

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	RecordError(ok, nil)
	ok.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "catalogue fetch failed", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
