package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
)

func TestCountsEvents(t *testing.T) {
	m := New()
	b := eventbus.New()
	off := m.Register(b)
	ctx := context.Background()
	r := httptest.NewRequest("POST", "/graphql", nil)

	eventbus.Emit(ctx, b, events.HTTPFinish{Route: events.RouteGraphQL, Request: r, Status: 200, Duration: time.Millisecond})
	eventbus.Emit(ctx, b, events.HTTPFinish{Route: events.RouteGraphQL, Request: r, Status: 400})
	eventbus.Emit(ctx, b, events.GraphQLFinish{ErrorCount: 3})
	eventbus.Emit(ctx, b, events.WSConnect{ConnectionID: "c"})
	eventbus.Emit(ctx, b, events.OperationStart{ConnectionID: "c", OperationID: "1"})
	eventbus.Emit(ctx, b, events.OperationStart{ConnectionID: "c", OperationID: "2"})
	eventbus.Emit(ctx, b, events.OperationFinish{ConnectionID: "c", OperationID: "1", Outcome: events.OutcomeStopped})
	eventbus.Emit(ctx, b, events.Frame{ConnectionID: "c", Direction: events.Outbound, Type: "data"})
	eventbus.Emit(ctx, b, events.Frame{ConnectionID: "c", Direction: events.Outbound, Type: "data"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("graphql", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("graphql", "POST", "400")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.graphqlErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("stopped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues("out", "data")))

	off()
	eventbus.Emit(ctx, b, events.WSDisconnect{ConnectionID: "c"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	b := eventbus.New()
	m.Register(b)
	eventbus.Emit(context.Background(), b, events.WSConnect{ConnectionID: "c"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gqlws_ws_connections 1")
}
