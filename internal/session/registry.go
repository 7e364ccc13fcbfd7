package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	engine "github.com/hanpama/gqlws/internal/engine"
	protocol "github.com/hanpama/gqlws/internal/protocol"
)

var (
	// ErrAlreadyExists is returned by Register for an id that is still live.
	ErrAlreadyExists = errors.New("operation already exists")
	// ErrNotFound is returned by Cancel for an id that is not live.
	ErrNotFound = errors.New("operation not found")
)

// Operation is one client-started execution on a connection.
//
// mu serializes frame emission with cancellation: once cancelled is set no
// frame is emitted for the operation by its own task.
type Operation struct {
	ID      string
	Request engine.Request

	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	results int

	mu        sync.Mutex
	cancelled bool
}

func newOperation(parent context.Context, id string) *Operation {
	ctx, cancel := context.WithCancel(parent)
	return &Operation{ID: id, ctx: ctx, cancel: cancel, started: time.Now()}
}

// Context is done once the operation has been cancelled or finished.
func (o *Operation) Context() context.Context { return o.ctx }

// Cancelled reports whether cancellation has taken effect.
func (o *Operation) Cancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// stop marks o cancelled and signals its task. It waits for an in-flight
// emission to finish, so no frame of o is emitted after stop returns.
func (o *Operation) stop() {
	o.mu.Lock()
	o.cancelled = true
	o.mu.Unlock()
	o.cancel()
}

// emit sends m through send unless o has been cancelled.
func (o *Operation) emit(send func(protocol.Message) error, m protocol.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelled {
		return false
	}
	_ = send(m)
	if m.Type == protocol.TypeData {
		o.results++
	}
	return true
}

// Results returns the number of data frames emitted so far.
func (o *Operation) Results() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results
}

// Registry maps operation ids to live operations for one connection.
type Registry struct {
	mu  sync.Mutex
	ops map[string]*Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds op under op.ID.
func (r *Registry) Register(op *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[op.ID]; ok {
		return ErrAlreadyExists
	}
	r.ops[op.ID] = op
	return nil
}

// Deregister removes id if it is still held by op. It reports whether this
// call removed the entry; later calls and calls for a replaced entry return
// false.
func (r *Registry) Deregister(id string, op *Operation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.ops[id]
	if !ok || cur != op {
		return false
	}
	delete(r.ops, id)
	return true
}

// Lookup returns the live operation for id.
func (r *Registry) Lookup(id string) (*Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	return op, ok
}

// Has reports whether id is live.
func (r *Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Len returns the number of live operations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// Cancel removes id and stops its task.
func (r *Registry) Cancel(id string) (*Operation, error) {
	r.mu.Lock()
	op, ok := r.ops[id]
	if ok {
		delete(r.ops, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	op.stop()
	return op, nil
}

// CancelAll stops every live operation and empties the registry. It returns
// the cancelled ids in sorted order.
func (r *Registry) CancelAll() []string {
	ops := r.cancelAll()
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return ids
}

func (r *Registry) cancelAll() []*Operation {
	r.mu.Lock()
	ops := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.ops = make(map[string]*Operation)
	r.mu.Unlock()

	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	for _, op := range ops {
		op.stop()
	}
	return ops
}
