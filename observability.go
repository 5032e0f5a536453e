package keyset

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the library tracer. Spans are recorded only when the embedding
// process installs a tracer provider; without one they are no-ops.
var tracer = otel.Tracer("keyset")

// startPageSpan opens a span around a single page fetch.
func startPageSpan(ctx context.Context, mode string, request Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "keyset.page",
		trace.WithAttributes(
			attribute.String("keyset.mode", mode),
			attribute.String("keyset.direction", string(request.Direction)),
			attribute.Int("keyset.limit", request.Limit),
			attribute.Bool("keyset.has_cursor", request.HasCursor()),
		),
	)
}

func endPageSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.RecordError(err)
	}

	span.End()
}
