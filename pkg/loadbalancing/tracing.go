package loadbalancing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/arena/pkg/peer"
)

// tracerName is the instrumentation scope of client spans.
const tracerName = "github.com/vango-dev/arena/pkg/loadbalancing"

// tracing records client operations, responses and state transitions as spans.
type tracing struct {
	tracer trace.Tracer
}

func newTracing(provider trace.TracerProvider) tracing {
	return tracing{tracer: provider.Tracer(tracerName)}
}

// operation records an operation request sent on a peer.
func (t tracing) operation(ctx context.Context, peerName string, code int, err error, attrs ...attribute.KeyValue) {
	_, span := t.tracer.Start(ctx, fmt.Sprintf("arena.op.%d", code),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("arena.peer", peerName),
			attribute.Int("arena.op.code", code),
		),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// response records a response received on a peer.
func (t tracing) response(ctx context.Context, peerName string, resp *peer.Response) {
	_, span := t.tracer.Start(ctx, fmt.Sprintf("arena.response.%d", resp.Code),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("arena.peer", peerName),
			attribute.Int("arena.op.code", resp.Code),
			attribute.Int("arena.err.code", resp.ErrCode),
		),
	)
	defer span.End()

	if !resp.OK() {
		span.SetStatus(codes.Error, resp.ErrMsg)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// transition records a workflow state change.
func (t tracing) transition(ctx context.Context, from, to State) {
	_, span := t.tracer.Start(ctx, "arena.state",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("arena.state.from", from.String()),
			attribute.String("arena.state.to", to.String()),
		),
	)
	if to == StateError {
		span.SetStatus(codes.Error, "workflow error")
	}
	span.End()
}
