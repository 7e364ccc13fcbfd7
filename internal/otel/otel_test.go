package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
	reqid "github.com/hanpama/gqlws/internal/reqid"
)

func newRecorder(t *testing.T) (*eventbus.Bus, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	b := eventbus.New()
	t.Cleanup(Register(b, tp.Tracer("test")))
	return b, sr
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestHTTPAndGraphQLSpans(t *testing.T) {
	b, sr := newRecorder(t)
	ctx, rid := reqid.NewContext(context.Background())
	r := httptest.NewRequest("POST", "/graphql", nil)

	eventbus.Emit(ctx, b, events.HTTPStart{Route: events.RouteGraphQL, Request: r})
	eventbus.Emit(ctx, b, events.GraphQLStart{Query: "{ a }", OperationName: "A"})
	eventbus.Emit(ctx, b, events.GraphQLFinish{Query: "{ a }", OperationName: "A", ErrorCount: 2})
	eventbus.Emit(ctx, b, events.HTTPFinish{Route: events.RouteGraphQL, Request: r, Status: 400})

	ended := sr.Ended()
	require.Len(t, ended, 2)
	op, req := ended[0], ended[1]
	assert.Equal(t, "graphql.operation", op.Name())
	assert.Equal(t, "http.request", req.Name())
	assert.Equal(t, req.SpanContext().SpanID(), op.Parent().SpanID())
	assert.Equal(t, codes.Error, op.Status().Code)
	assert.Equal(t, int64(2), attrs(op)["graphql.error_count"].AsInt64())
	assert.Equal(t, rid, attrs(req)["graphql.request_id"].AsString())
	assert.Equal(t, int64(400), attrs(req)["http.status_code"].AsInt64())
	assert.Equal(t, codes.Unset, req.Status().Code)
}

func TestWSSpans(t *testing.T) {
	b, sr := newRecorder(t)
	ctx := context.Background()

	eventbus.Emit(ctx, b, events.WSConnect{ConnectionID: "c1", Request: httptest.NewRequest("GET", "/subscriptions", nil)})
	eventbus.Emit(ctx, b, events.Frame{ConnectionID: "c1", Direction: events.Inbound, Type: "connection_init"})
	eventbus.Emit(ctx, b, events.OperationStart{ConnectionID: "c1", OperationID: "1", OperationName: "S"})
	eventbus.Emit(ctx, b, events.OperationFinish{ConnectionID: "c1", OperationID: "1", Outcome: events.OutcomeComplete, Results: 3})
	eventbus.Emit(ctx, b, events.OperationStart{ConnectionID: "c1", OperationID: "2"})
	eventbus.Emit(ctx, b, events.OperationFinish{ConnectionID: "c1", OperationID: "2", Outcome: events.OutcomeError})
	eventbus.Emit(ctx, b, events.WSDisconnect{ConnectionID: "c1", Err: errors.New("read: eof")})

	ended := sr.Ended()
	require.Len(t, ended, 3)
	op1, op2, conn := ended[0], ended[1], ended[2]

	assert.Equal(t, "ws.operation", op1.Name())
	assert.Equal(t, conn.SpanContext().SpanID(), op1.Parent().SpanID())
	assert.Equal(t, "complete", attrs(op1)["graphql_ws.outcome"].AsString())
	assert.Equal(t, int64(3), attrs(op1)["graphql_ws.results"].AsInt64())
	assert.Equal(t, codes.Error, op2.Status().Code)

	assert.Equal(t, "ws.connection", conn.Name())
	assert.Equal(t, codes.Error, conn.Status().Code)
	var names []string
	for _, ev := range conn.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"frame", "exception"}, names)
}

func TestUnknownFinishIgnored(t *testing.T) {
	b, sr := newRecorder(t)
	ctx := context.Background()
	eventbus.Emit(ctx, b, events.OperationFinish{ConnectionID: "x", OperationID: "1"})
	eventbus.Emit(ctx, b, events.WSDisconnect{ConnectionID: "x"})
	eventbus.Emit(ctx, b, events.HTTPFinish{Status: 200})
	assert.Empty(t, sr.Ended())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "svc", eventbus.New())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
