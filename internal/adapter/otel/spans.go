package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "flowspace"

// StartMoveSpan starts a span for one move protocol call.
func StartMoveSpan(ctx context.Context, taskID, newStatus string, newOrder int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.move",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.new_status", newStatus),
			attribute.Int("task.new_order", newOrder),
		),
	)
}

// StartRelaySpan starts a span for relaying an intent to a workspace room.
func StartRelaySpan(ctx context.Context, eventType, workspaceID, connID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "realtime.relay",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("workspace.id", workspaceID),
			attribute.String("conn.id", connID),
		),
	)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
