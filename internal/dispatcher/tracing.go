package dispatcher

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alvesdmateus/easydeploy/internal/descriptor"
	"github.com/alvesdmateus/easydeploy/internal/observability"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

// WithTracer overrides the process-wide tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// startSpan opens the span that parents the API calls of one operation.
func (d *Dispatcher) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return d.tracer.StartSpan(ctx, "easydeploy."+op, trace.WithSpanKind(trace.SpanKindInternal))
}

// endSpan tags span with the deployment the operation touched, if any.
func endSpan(span trace.Span, dep tracker.Deployment, err error) {
	if dep.ID != "" {
		span.SetAttributes(observability.DeploymentSpanAttributes(dep.ID, dep.Name, string(dep.State))...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func tagDescriptor(span trace.Span, desc *descriptor.Descriptor) {
	span.SetAttributes(
		observability.AttrDeploymentName.String(desc.Name),
		observability.AttrCloudProvider.String(desc.Platform),
		observability.AttrCloudRegion.String(desc.Region),
	)
}
