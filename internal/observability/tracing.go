package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for distributed tracing
type TracingConfig struct {
	// Enabled determines if spans are exported
	Enabled bool
	// ServiceName is reported as service.name
	ServiceName string
	// ServiceVersion is reported as service.version
	ServiceVersion string
	// Environment is reported as deployment.environment
	Environment string
	// OTLPEndpoint is the OpenTelemetry collector endpoint (e.g., "localhost:4318")
	OTLPEndpoint string
	// SampleRate is the sampling rate (0.0 to 1.0)
	SampleRate float64
	// Insecure disables TLS for the OTLP exporter
	Insecure bool
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    "easydeploy-cli",
		ServiceVersion: "dev",
		Environment:    "local",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1.0,
		Insecure:       true,
	}
}

// Tracer wraps OpenTelemetry tracing functionality
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracingConfig
}

// NewTracer creates a tracer. When tracing is disabled the returned tracer
// produces no-op spans.
func NewTracer(ctx context.Context, config TracingConfig) (*Tracer, error) {
	if !config.Enabled {
		return &Tracer{
			tracer: otel.Tracer(config.ServiceName),
			config: config,
		}, nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
		resource.WithHost(),
		resource.WithOS(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}, nil
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span with the given name
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Inject writes the trace context of ctx into outgoing request headers.
func (t *Tracer) Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// RecordError records an error on the current span
func (t *Tracer) RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).RecordError(err, opts...)
}

// IsEnabled returns whether spans are exported
func (t *Tracer) IsEnabled() bool {
	return t.config.Enabled
}

// Attribute keys used on client spans
var (
	AttrDeploymentID     = attribute.Key("deployment.id")
	AttrDeploymentName   = attribute.Key("deployment.name")
	AttrDeploymentStatus = attribute.Key("deployment.status")

	AttrAPIOperation  = attribute.Key("easydeploy.operation")
	AttrHTTPMethod    = attribute.Key("http.request.method")
	AttrHTTPPath      = attribute.Key("url.path")
	AttrHTTPStatus    = attribute.Key("http.response.status_code")
	AttrErrorKind     = attribute.Key("easydeploy.error_kind")
	AttrCloudProvider = attribute.Key("cloud.provider")
	AttrCloudRegion   = attribute.Key("cloud.region")
	AttrBuildImage    = attribute.Key("build.image")
)

// APISpanAttributes returns the attributes for a control plane API call span
func APISpanAttributes(operation, method, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAPIOperation.String(operation),
		AttrHTTPMethod.String(method),
		AttrHTTPPath.String(path),
	}
}

// DeploymentSpanAttributes returns common attributes for deployment spans
func DeploymentSpanAttributes(id, name, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDeploymentID.String(id),
		AttrDeploymentName.String(name),
		AttrDeploymentStatus.String(status),
	}
}

var globalTracer *Tracer

// InitGlobalTracer initializes the process-wide tracer
func InitGlobalTracer(ctx context.Context, config TracingConfig) error {
	tracer, err := NewTracer(ctx, config)
	if err != nil {
		return err
	}
	globalTracer = tracer
	return nil
}

// GetGlobalTracer returns the process-wide tracer, or a no-op tracer when
// none was initialized.
func GetGlobalTracer() *Tracer {
	if globalTracer == nil {
		return &Tracer{
			tracer: otel.Tracer("easydeploy-cli"),
			config: DefaultTracingConfig(),
		}
	}
	return globalTracer
}

// ShutdownGlobalTracer shuts down the process-wide tracer
func ShutdownGlobalTracer(ctx context.Context) error {
	if globalTracer != nil {
		return globalTracer.Shutdown(ctx)
	}
	return nil
}
