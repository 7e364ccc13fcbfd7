// Package headers forwards selected HTTP headers into outgoing gRPC
// metadata so that resolvers calling gRPC backends propagate them.
package headers

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// RequestIDKey is the metadata key carrying the request or connection id.
const RequestIDKey = "graphql-request-id"

// Forwarder copies an allow-list of headers. The zero value forwards none.
type Forwarder struct {
	allowed map[string]struct{}
}

// NewForwarder builds a Forwarder; names are case-insensitive.
func NewForwarder(names ...string) Forwarder {
	f := Forwarder{allowed: make(map[string]struct{}, len(names))}
	for _, n := range names {
		f.allowed[strings.ToLower(n)] = struct{}{}
	}
	return f
}

// Metadata returns the forwarded subset of h plus the request id.
func (f Forwarder) Metadata(h http.Header, requestID string) metadata.MD {
	md := metadata.MD{}
	for k, v := range h {
		lk := strings.ToLower(k)
		if _, ok := f.allowed[lk]; ok {
			md[lk] = append([]string(nil), v...)
		}
	}
	if requestID != "" {
		md[RequestIDKey] = []string{requestID}
	}
	return md
}

// Outgoing attaches the forwarded metadata to ctx.
func (f Forwarder) Outgoing(ctx context.Context, h http.Header, requestID string) context.Context {
	return metadata.NewOutgoingContext(ctx, f.Metadata(h, requestID))
}
