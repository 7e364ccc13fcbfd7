// Package otel turns bus events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
	reqid "github.com/hanpama/gqlws/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures an OTLP gRPC exporter and attaches span subscribers to
// b. If endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, endpoint, service string, b *eventbus.Bus) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unregister := Register(b, tp.Tracer("gqlws"))
	return func(ctx context.Context) error {
		unregister()
		return tp.Shutdown(ctx)
	}, nil
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	gqlSpans  sync.Map // rid -> trace.Span
	connSpans sync.Map // connection id -> trace.Span
	opSpans   sync.Map // opKey -> trace.Span
}

type opKey struct{ conn, op string }

// Register attaches span subscribers for HTTP requests, GraphQL operations,
// graphql-ws connections and their operations.
func Register(b *eventbus.Bus, tracer trace.Tracer) (unregister func()) {
	s := &subscriber{tracer: tracer}
	offs := []func(){
		eventbus.On(b, s.httpStart),
		eventbus.On(b, s.httpFinish),
		eventbus.On(b, s.graphqlStart),
		eventbus.On(b, s.graphqlFinish),
		eventbus.On(b, s.wsConnect),
		eventbus.On(b, s.wsDisconnect),
		eventbus.On(b, s.operationStart),
		eventbus.On(b, s.operationFinish),
		eventbus.On(b, s.frame),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (s *subscriber) httpStart(ctx context.Context, e events.HTTPStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		semconv.HTTPMethodKey.String(e.Request.Method),
		attribute.String("http.target", e.Request.URL.Path),
		attribute.String("http.route", e.Route),
		attribute.String("graphql.request_id", rid),
	)
	s.httpSpans.Store(rid, span)
}

func (s *subscriber) httpFinish(ctx context.Context, e events.HTTPFinish) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.httpSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
	if e.Status >= 500 {
		span.SetStatus(codes.Error, "")
	}
	span.End()
}

func (s *subscriber) graphqlStart(ctx context.Context, e events.GraphQLStart) {
	rid, _ := reqid.FromContext(ctx)
	parent := ctx
	if v, ok := s.httpSpans.Load(rid); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := s.tracer.Start(parent, "graphql.operation")
	span.SetAttributes(attribute.String("graphql.operation.name", e.OperationName))
	s.gqlSpans.Store(rid, span)
}

func (s *subscriber) graphqlFinish(ctx context.Context, e events.GraphQLFinish) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.gqlSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attribute.Int("graphql.error_count", e.ErrorCount))
	if e.ErrorCount > 0 {
		span.SetStatus(codes.Error, "graphql errors")
	}
	span.End()
}

func (s *subscriber) wsConnect(ctx context.Context, e events.WSConnect) {
	_, span := s.tracer.Start(ctx, "ws.connection", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.String("graphql_ws.connection_id", e.ConnectionID))
	if e.Request != nil {
		span.SetAttributes(attribute.String("http.target", e.Request.URL.Path))
	}
	s.connSpans.Store(e.ConnectionID, span)
}

func (s *subscriber) wsDisconnect(ctx context.Context, e events.WSDisconnect) {
	v, ok := s.connSpans.LoadAndDelete(e.ConnectionID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
	span.End()
}

func (s *subscriber) operationStart(ctx context.Context, e events.OperationStart) {
	parent := ctx
	if v, ok := s.connSpans.Load(e.ConnectionID); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := s.tracer.Start(parent, "ws.operation")
	span.SetAttributes(
		attribute.String("graphql_ws.operation_id", e.OperationID),
		attribute.String("graphql.operation.name", e.OperationName),
	)
	s.opSpans.Store(opKey{e.ConnectionID, e.OperationID}, span)
}

func (s *subscriber) operationFinish(ctx context.Context, e events.OperationFinish) {
	v, ok := s.opSpans.LoadAndDelete(opKey{e.ConnectionID, e.OperationID})
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.String("graphql_ws.outcome", e.Outcome),
		attribute.Int("graphql_ws.results", e.Results),
	)
	if e.Outcome == events.OutcomeError {
		span.SetStatus(codes.Error, "operation failed")
	}
	span.End()
}

func (s *subscriber) frame(ctx context.Context, e events.Frame) {
	v, ok := s.connSpans.Load(e.ConnectionID)
	if !ok {
		return
	}
	v.(trace.Span).AddEvent("frame", trace.WithAttributes(
		attribute.String("graphql_ws.direction", e.Direction),
		attribute.String("graphql_ws.type", e.Type),
	))
}
