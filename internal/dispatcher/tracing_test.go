package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/alvesdmateus/easydeploy/internal/descriptor"
	"github.com/alvesdmateus/easydeploy/internal/gateway"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return rec
}

func endedSpan(t *testing.T, rec *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range rec.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not recorded", "no ended span named %s", name)
	return nil
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	out := make(map[string]string)
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestDeploy_RecordsSpan(t *testing.T) {
	rec := recordSpans(t)
	gw := &stubGateway{deploy: func(descriptor.DeployRequest) (gateway.DeployResult, error) {
		return gateway.DeployResult{DeploymentID: "d1"}, nil
	}}
	d, _ := newDispatcher(gw)

	_, err := d.Deploy(context.Background(), writeDescriptor(t, demoDescriptor+"region: eu-west-1\n"), DeployOptions{})
	require.NoError(t, err)

	attrs := spanAttrs(endedSpan(t, rec, "easydeploy.deploy"))
	assert.Equal(t, "d1", attrs["deployment.id"])
	assert.Equal(t, "demo", attrs["deployment.name"])
	assert.Equal(t, "in_progress", attrs["deployment.status"])
	assert.Equal(t, "aws", attrs["cloud.provider"])
	assert.Equal(t, "eu-west-1", attrs["cloud.region"])
}

func TestRemove_RecordsFailedSpan(t *testing.T) {
	rec := recordSpans(t)
	gw := &stubGateway{remove: func(string) error { return serverError("remove") }}
	d, tr := newDispatcher(gw)
	tr.RecordNew("d1", "demo")

	_, err := d.Remove(context.Background(), "d1", true)
	require.Error(t, err)

	span := endedSpan(t, rec, "easydeploy.remove")
	assert.Equal(t, codes.Error, span.Status().Code)
	attrs := spanAttrs(span)
	assert.Equal(t, "d1", attrs["deployment.id"])
	assert.Equal(t, "demo", attrs["deployment.name"])
}

func TestRedeploy_RecordsSpan(t *testing.T) {
	rec := recordSpans(t)
	gw := &stubGateway{redeploy: func(string) (gateway.DeployResult, error) {
		return gateway.DeployResult{DeploymentID: "d2"}, nil
	}}
	d, tr := newDispatcher(gw)
	tr.RecordNew("d1", "demo")

	_, err := d.Redeploy(context.Background(), "d1")
	require.NoError(t, err)

	attrs := spanAttrs(endedSpan(t, rec, "easydeploy.redeploy"))
	assert.Equal(t, "d2", attrs["deployment.id"])
	assert.Equal(t, "demo", attrs["deployment.name"])
}
