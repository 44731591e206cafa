package builder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/alvesdmateus/easydeploy/internal/descriptor"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return rec
}

func TestBuild_RecordsImageSpan(t *testing.T) {
	rec := recordSpans(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "FROM scratch\n")

	b := newDockerBuilder(&fakeDocker{output: `{"stream":"done\n"}`})
	_, err := b.Build(context.Background(), demoDescriptor(), dir)
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "easydeploy.build", spans[0].Name())
	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "demo:latest", attrs["build.image"])
	assert.Equal(t, "Demo", attrs["deployment.name"])
}

func TestBuild_FailedSpan(t *testing.T) {
	rec := recordSpans(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Dockerfile"), "FROM scratch\n")

	b := newDockerBuilder(&fakeDocker{err: errors.New("daemon down")})
	_, err := b.Build(context.Background(), demoDescriptor(), dir)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestBuildArgs_LaterDuplicateWins(t *testing.T) {
	d := demoDescriptor()
	d.Build.Args = descriptor.EnvVars{{Key: "MODE", Value: "dev"}, {Key: "MODE", Value: "prod"}}

	args := buildArgs(d)
	require.Contains(t, args, "MODE")
	assert.Equal(t, "prod", *args["MODE"])
}
