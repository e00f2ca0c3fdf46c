// Package tracing wraps proxied calls in OpenTelemetry spans. It uses
// the global TracerProvider, which is a no-op until Configure installs an
// SDK provider; that provider has no exporter, so running the proxy never
// requires a collector.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/llmtap/llmtap/internal/proxy"

// Configure installs a real (non-no-op) SDK TracerProvider as the
// global provider, sampling every span. No exporter is registered: the
// spans are available to anything that reads the provider in-process
// (tests, a future collector export pipeline) without requiring one at
// startup. Returns a shutdown func to flush on exit.
func Configure() func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// StartForward starts a span named "llmtap.proxy.forward" for one
// proxied call, tagged with the HTTP method and upstream target. Callers
// must end the returned span.
func StartForward(ctx context.Context, method, upstream string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "llmtap.proxy.forward", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("upstream", upstream),
	))
}

// SetDialect annotates span with the detected wire dialect once known.
func SetDialect(span trace.Span, dialect string) {
	span.SetAttributes(attribute.String("trace.dialect", dialect))
}
