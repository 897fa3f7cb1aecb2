// Package tracing wraps go.opentelemetry.io/otel/trace so the rest of the
// service can deal in opaque span handles — started, child-started,
// follows-from-started, and finished at the exact points spec'd for the
// acceptor and executor pipeline — without depending on any particular
// tracing backend. A no-op TracerProvider is wired by default; exporter
// wiring is an external collaborator's job, not this package's.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName names the tracer every span of this service is
// started from.
const instrumentationName = "github.com/zynqcloud/gunkan-blob"

// Tracer returns the package-wide tracer, sourced from whatever
// TracerProvider is registered globally (otel.SetTracerProvider). Callers
// that want a specific provider should call otel.SetTracerProvider before
// the server starts accepting connections.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartActive begins the top-level "active" span for one accepted
// connection. Its lifetime spans the whole request, from acceptance to
// reply completion.
func StartActive(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

// StartChild begins a span that is ChildOf the span carried in ctx — used
// for the parse span nested under the connection's active span.
func StartChild(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

// StartFollowsFrom begins a span that FollowsFrom prev while remaining
// ChildOf the span in ctx — the shape spec'd for the "wait" span, which
// logically follows "parse" but nests under the same connection.
func StartFollowsFrom(ctx context.Context, name string, prev trace.Span) (context.Context, trace.Span) {
	link := trace.LinkFromContext(trace.ContextWithSpan(ctx, prev))
	return Tracer().Start(ctx, name, trace.WithLinks(link))
}

// Finish ends span. Handlers are responsible for calling this at the
// documented points (see internal/classifier and internal/handler) —
// nothing here does it implicitly.
func Finish(span trace.Span) {
	span.End()
}

// Traceparent formats span's context as a W3C traceparent header value
// (https://www.w3.org/TR/trace-context/#traceparent-header), letting a
// reply carry the active span's identity back to the client. Returns ""
// for a span with no valid context (e.g. the no-op tracer), in which
// case the caller should omit the header entirely.
func Traceparent(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	flags := "00"
	if sc.IsSampled() {
		flags = "01"
	}
	return fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), flags)
}
