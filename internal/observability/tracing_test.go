package observability

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTracingConfig(t *testing.T) {
	config := DefaultTracingConfig()

	assert.False(t, config.Enabled)
	assert.Equal(t, "easydeploy-cli", config.ServiceName)
	assert.Equal(t, "localhost:4318", config.OTLPEndpoint)
	assert.Equal(t, 1.0, config.SampleRate)
	assert.True(t, config.Insecure)
}

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracingConfig{
		Enabled:     false,
		ServiceName: "test-service",
	})
	require.NoError(t, err)
	assert.False(t, tracer.IsEnabled())

	// Spans are no-ops but usable
	ctx, span := tracer.StartSpan(context.Background(), "test-span")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	tracer.RecordError(ctx, assert.AnError)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithUnreachableCollector(t *testing.T) {
	// Exporter errors surface on export, not on construction
	tracer, err := NewTracer(context.Background(), TracingConfig{
		Enabled:        true,
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "invalid-endpoint:9999",
		SampleRate:     0.5,
		Insecure:       true,
	})
	require.NoError(t, err)
	assert.True(t, tracer.IsEnabled())

	h := http.Header{}
	ctx, span := tracer.StartSpan(context.Background(), "client-call")
	tracer.Inject(ctx, h)
	span.End()

	shutdownCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tracer.Shutdown(shutdownCtx)
}

func TestGetGlobalTracer_DefaultsToNoop(t *testing.T) {
	tracer := GetGlobalTracer()
	require.NotNil(t, tracer)
	assert.False(t, tracer.IsEnabled())
	assert.NoError(t, ShutdownGlobalTracer(context.Background()))
}

func TestAPISpanAttributes(t *testing.T) {
	attrs := APISpanAttributes("deploy", "POST", "/deployments")

	require.Len(t, attrs, 3)
	assert.Equal(t, "easydeploy.operation", string(attrs[0].Key))
	assert.Equal(t, "deploy", attrs[0].Value.AsString())
	assert.Equal(t, "POST", attrs[1].Value.AsString())
	assert.Equal(t, "/deployments", attrs[2].Value.AsString())
}

func TestDeploymentSpanAttributes(t *testing.T) {
	attrs := DeploymentSpanAttributes("dep-123", "demo", "in_progress")

	require.Len(t, attrs, 3)
	assert.Equal(t, "deployment.id", string(attrs[0].Key))
	assert.Equal(t, "dep-123", attrs[0].Value.AsString())
	assert.Equal(t, "deployment.name", string(attrs[1].Key))
	assert.Equal(t, "deployment.status", string(attrs[2].Key))
}
