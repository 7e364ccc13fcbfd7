// Package engine defines the contract between the transports and a GraphQL
// execution engine.
//
// Transports never look inside a query. They hand a Request to an Engine and
// relay what comes back: a single Result for HTTP, or a Stream of Results for
// a graphql-ws operation. Per-request data travels in an immutable Values
// snapshot carried both on the Request and on the resolver context.
package engine

import (
	"context"
	"errors"
	"io"

	language "github.com/hanpama/gqlws/internal/language"
)

// Request is one GraphQL operation as extracted by a transport.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Values        Values
}

// Result is the response shape shared by HTTP bodies and graphql-ws data
// payloads.
type Result struct {
	Data   any                `json:"data"`
	Errors language.ErrorList `json:"errors,omitempty"`
}

// HasErrors reports whether r carries at least one error.
func (r *Result) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// Stream yields the results of a long-lived operation.
//
// Next blocks until a result is available, the stream ends (io.EOF), the
// engine fails (*Error) or ctx is done (ctx.Err()). Close releases the
// underlying source and is safe to call more than once.
type Stream interface {
	Next(ctx context.Context) (*Result, error)
	Close() error
}

// Engine executes GraphQL requests.
type Engine interface {
	// Execute runs a single-shot operation. Request errors (syntax,
	// validation, variable coercion) are reported in Result.Errors.
	Execute(ctx context.Context, req Request) *Result

	// Subscribe starts a streamed operation. Request errors are returned as
	// *Error before any result is produced. Queries and mutations produce a
	// stream with exactly one result.
	Subscribe(ctx context.Context, req Request) (Stream, error)
}

// Error is a structured engine failure.
type Error struct {
	Errors language.ErrorList
}

// NewError wraps err as an engine failure, keeping GraphQL error details.
func NewError(err error) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	return &Error{Errors: language.AsErrorList(err)}
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return "engine error"
	}
	return e.Errors.Error()
}

// IsEndOfStream reports whether err marks the normal end of a Stream.
func IsEndOfStream(err error) bool { return errors.Is(err, io.EOF) }

// SliceStream is a Stream over a fixed list of results.
type SliceStream struct {
	results []*Result
	pos     int
}

// NewSliceStream returns a stream yielding results in order.
func NewSliceStream(results ...*Result) *SliceStream {
	return &SliceStream{results: results}
}

func (s *SliceStream) Next(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.results) {
		return nil, io.EOF
	}
	r := s.results[s.pos]
	s.pos++
	return r, nil
}

func (s *SliceStream) Close() error { return nil }
