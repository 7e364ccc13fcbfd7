package events

import (
	"net/http"
	"time"
)

// Routes reported on HTTP events.
const (
	RouteGraphQL  = "graphql"
	RouteGraphiQL = "graphiql"
)

// HTTPStart is emitted when an HTTP request is received.
// Context carries the request context and request id.
type HTTPStart struct {
	Route   string
	Request *http.Request
}

// HTTPFinish is emitted after the handler has written its response.
type HTTPFinish struct {
	Route    string
	Request  *http.Request
	Status   int
	Duration time.Duration
}
