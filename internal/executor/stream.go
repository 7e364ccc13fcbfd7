package executor

import (
	"context"
	"fmt"
	"io"
	"sync"

	engine "github.com/hanpama/gqlws/internal/engine"
	language "github.com/hanpama/gqlws/internal/language"
)

// Subscribe starts an operation as a stream. Subscriptions map every source
// event through the selection set; queries and mutations execute at once
// and yield a single result.
func (e *Executor) Subscribe(ctx context.Context, req engine.Request) (engine.Stream, error) {
	p, errs := e.prepare(req)
	if errs != nil {
		return nil, &engine.Error{Errors: errs}
	}
	if p.operation.Operation != language.Subscription {
		return engine.NewSliceStream(e.execute(ctx, p, nil, false)), nil
	}

	root := e.schema.Subscription
	if root == nil {
		return nil, &engine.Error{Errors: language.ErrorList{language.Errorf("Schema is not configured for subscriptions.")}}
	}
	state := e.newState(ctx, p)
	grouped := collectFields(state, root, p.operation.SelectionSet)
	if len(grouped.fields) != 1 {
		return nil, &engine.Error{Errors: language.ErrorList{language.Errorf("Subscription must select exactly one top level field.")}}
	}
	cf := grouped.fields[0]
	field := cf.Fields[0]
	path := language.Path{language.PathName(cf.ResponseName)}

	def := getFieldDefinition(root, field)
	source, ok := e.cfg.Sources[Key(root.Name, field.Name)]
	if def == nil || !ok {
		state.addError(field, path, fmt.Sprintf("No event source for subscription field %q.", field.Name))
		return nil, &engine.Error{Errors: state.errors}
	}
	args, err := coerceArgumentValues(def, field, p.variables)
	if err != nil {
		state.addError(field, path, err.Error())
		return nil, &engine.Error{Errors: state.errors}
	}

	sctx, cancel := context.WithCancel(ctx)
	events, err := source(sctx, args)
	if err != nil {
		cancel()
		state.addFieldError(field, path, err)
		return nil, &engine.Error{Errors: state.errors}
	}
	return &eventStream{exec: e, prepared: p, events: events, cancel: cancel}, nil
}

// eventStream executes the subscription once per source event. An error
// value received from the source ends the stream with that error.
type eventStream struct {
	exec     *Executor
	prepared *prepared
	events   <-chan any
	cancel   context.CancelFunc
	once     sync.Once
}

func (s *eventStream) Next(ctx context.Context) (*engine.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			return nil, io.EOF
		}
		if err, isErr := ev.(error); isErr {
			return nil, engine.NewError(err)
		}
		return s.exec.execute(ctx, s.prepared, ev, true), nil
	}
}

func (s *eventStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}
