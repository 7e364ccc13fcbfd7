package engine

import (
	"context"
	"net/http"
	"sync"
)

// Well-known keys overlaid by the transports.
const (
	KeyRequest      = "request"
	KeyBackground   = "background"
	KeyConnectionID = "connection_id"
	KeyConnParams   = "connection_params"
)

// Values is an immutable snapshot of execution context entries. Use With to
// derive a new snapshot; the receiver is never modified.
type Values struct {
	m map[string]any
}

// NewValues deep-copies base into a fresh snapshot. Nested maps and slices
// are copied so that later changes to base are not observed.
func NewValues(base map[string]any) Values {
	m := make(map[string]any, len(base))
	for k, v := range base {
		m[k] = deepCopy(v)
	}
	return Values{m: m}
}

// With returns a copy of v with overlay entries set; overlay wins on
// conflicts. Overlay values are stored as given (request handles and sinks
// are shared, not copied).
func (v Values) With(overlay map[string]any) Values {
	m := make(map[string]any, len(v.m)+len(overlay))
	for k, val := range v.m {
		m[k] = val
	}
	for k, val := range overlay {
		m[k] = val
	}
	return Values{m: m}
}

// Get returns the entry for key.
func (v Values) Get(key string) (any, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Len returns the number of entries.
func (v Values) Len() int { return len(v.m) }

// Map returns a deep copy of the entries.
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v.m))
	for k, val := range v.m {
		out[k] = deepCopy(val)
	}
	return out
}

// Request returns the HTTP request stored under KeyRequest, if any.
func (v Values) Request() *http.Request {
	r, _ := v.m[KeyRequest].(*http.Request)
	return r
}

// Background returns the task sink stored under KeyBackground, if any.
func (v Values) Background() *Background {
	b, _ := v.m[KeyBackground].(*Background)
	return b
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

type valuesKey struct{}

// WithValues stores v on ctx for resolvers.
func WithValues(ctx context.Context, v Values) context.Context {
	return context.WithValue(ctx, valuesKey{}, v)
}

// ValuesFromContext returns the snapshot stored by WithValues.
func ValuesFromContext(ctx context.Context) (Values, bool) {
	v, ok := ctx.Value(valuesKey{}).(Values)
	return v, ok
}

// Background collects tasks to run after a response has been written.
type Background struct {
	mu    sync.Mutex
	tasks []func(context.Context)
}

// Add queues fn.
func (b *Background) Add(fn func(context.Context)) {
	b.mu.Lock()
	b.tasks = append(b.tasks, fn)
	b.mu.Unlock()
}

// Run executes queued tasks in order and empties the queue.
func (b *Background) Run(ctx context.Context) {
	b.mu.Lock()
	tasks := b.tasks
	b.tasks = nil
	b.mu.Unlock()
	for _, fn := range tasks {
		fn(ctx)
	}
}
