package session

import (
	"context"
	"errors"
	"sync"
	"time"

	engine "github.com/hanpama/gqlws/internal/engine"
	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
	protocol "github.com/hanpama/gqlws/internal/protocol"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StatePending State = iota
	StateAcknowledged
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAcknowledged:
		return "acknowledged"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sink receives outbound frames.
type Sink interface {
	Send(m protocol.Message) error
	// Close shuts the underlying transport down.
	Close() error
}

// ConnectFunc validates connection_init params. Returned values are overlaid
// on the connection context; an error rejects the connection.
type ConnectFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger; the connection id is added to every entry.
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

// WithConnect installs a connection_init hook.
func WithConnect(fn ConnectFunc) Option { return func(s *Session) { s.onConnect = fn } }

// Session drives one graphql-ws connection.
type Session struct {
	id        string
	engine    engine.Engine
	sink      Sink
	log       zerolog.Logger
	onConnect ConnectFunc
	registry  *Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	values engine.Values
}

// New creates a Session in the pending state. values is the connection's
// shared context snapshot; ctx bounds the lifetime of every operation.
func New(ctx context.Context, id string, eng engine.Engine, values engine.Values, sink Sink, opts ...Option) *Session {
	s := &Session{
		id:       id,
		engine:   eng,
		sink:     sink,
		log:      zerolog.Nop(),
		registry: NewRegistry(),
		values:   values,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("conn_id", id).Logger()
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registry exposes the live operations of the connection.
func (s *Session) Registry() *Registry { return s.registry }

// Wait blocks until every operation goroutine has returned.
func (s *Session) Wait() { s.wg.Wait() }

// HandleFrame decodes a raw frame and dispatches it.
func (s *Session) HandleFrame(frame []byte) {
	if s.State() == StateTerminated {
		return
	}
	m, err := protocol.Decode(frame)
	eventbus.Publish(s.ctx, events.Frame{ConnectionID: s.id, Direction: events.Inbound, Type: frameType(m, err)})
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) && de.ID != "" {
			s.protocolError(de.ID, err.Error())
			return
		}
		s.log.Warn().Err(err).Msg("undecodable frame")
		s.send(protocol.ConnectionError(err.Error()))
		return
	}
	s.Handle(m)
}

// Handle dispatches a decoded message according to the current state.
func (s *Session) Handle(m protocol.Message) {
	state := s.State()
	if state == StateTerminated {
		return
	}
	switch m.Type {
	case protocol.TypeConnectionInit:
		s.handleInit(m)
	case protocol.TypeStart:
		if state != StateAcknowledged {
			s.log.Warn().Str("op_id", m.ID).Str("state", state.String()).Msg("start before connection_init ignored")
			return
		}
		s.handleStart(m)
	case protocol.TypeStop:
		s.handleStop(m.ID)
	case protocol.TypeConnectionTerminate:
		if s.teardown(events.OutcomeTerminated) {
			if err := s.sink.Close(); err != nil {
				s.log.Debug().Err(err).Msg("close transport")
			}
		}
	default:
		s.protocolError(m.ID, "unexpected message type "+string(m.Type))
	}
}

// Disconnect tears the session down after the transport went away. No
// frames are sent.
func (s *Session) Disconnect() {
	s.teardown(events.OutcomeTerminated)
}

// KeepAlive sends a connection_keep_alive frame if the connection has been
// acknowledged.
func (s *Session) KeepAlive() {
	if s.State() == StateAcknowledged {
		s.send(protocol.KeepAlive())
	}
}

func (s *Session) handleInit(m protocol.Message) {
	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		s.log.Warn().Msg("duplicate connection_init")
		s.send(protocol.ConnectionError("connection already initialized"))
		return
	}
	s.mu.Unlock()

	params, err := m.Params()
	if err != nil {
		s.send(protocol.ConnectionError("invalid connection params"))
		return
	}
	overlay := map[string]any{engine.KeyConnParams: params}
	if s.onConnect != nil {
		extra, err := s.onConnect(s.ctx, params)
		if err != nil {
			s.log.Info().Err(err).Msg("connection rejected")
			s.send(protocol.ConnectionError(err.Error()))
			if s.teardown(events.OutcomeTerminated) {
				_ = s.sink.Close()
			}
			return
		}
		for k, v := range extra {
			overlay[k] = v
		}
	}

	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		return
	}
	s.values = s.values.With(overlay)
	s.state = StateAcknowledged
	s.mu.Unlock()

	s.log.Debug().Msg("connection acknowledged")
	s.send(protocol.ConnectionAck())
}

func (s *Session) handleStart(m protocol.Message) {
	op := newOperation(s.ctx, m.ID)
	if err := s.registry.Register(op); err != nil {
		op.cancel()
		s.log.Warn().Str("op_id", m.ID).Msg("duplicate operation id")
		s.send(protocol.Error(m.ID, protocol.ErrorPayload{Message: "operation id " + m.ID + " is already in use"}))
		return
	}

	payload, err := m.Start()
	eventbus.Publish(s.ctx, events.OperationStart{ConnectionID: s.id, OperationID: op.ID, OperationName: payload.OperationName})
	if err != nil {
		s.finish(op, engine.NewError(errors.New("invalid start payload")))
		return
	}
	s.mu.Lock()
	values := s.values
	s.mu.Unlock()
	op.Request = engine.Request{
		Query:         payload.Query,
		OperationName: payload.OperationName,
		Variables:     payload.Variables,
		Values:        values,
	}

	s.log.Debug().Str("op_id", op.ID).Str("operation", payload.OperationName).Msg("operation started")

	s.wg.Add(1)
	go s.run(op)
}

func (s *Session) run(op *Operation) {
	defer s.wg.Done()
	ctx := engine.WithValues(op.ctx, op.Request.Values)

	stream, err := s.engine.Subscribe(ctx, op.Request)
	if err != nil {
		s.finish(op, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.log.Debug().Err(err).Str("op_id", op.ID).Msg("close stream")
		}
	}()

	for {
		res, err := stream.Next(ctx)
		if err != nil {
			s.finish(op, err)
			return
		}
		if !op.emit(s.sink.Send, protocol.Data(op.ID, res)) {
			return
		}
	}
}

// finish deregisters op after its stream ended and emits the terminal frame.
// It does nothing if op was already stopped or torn down.
func (s *Session) finish(op *Operation, err error) {
	op.mu.Lock()
	if op.cancelled || !s.registry.Deregister(op.ID, op) {
		op.mu.Unlock()
		return
	}
	op.cancelled = true

	outcome := events.OutcomeComplete
	switch {
	case err == nil || engine.IsEndOfStream(err):
		_ = s.sink.Send(protocol.Complete(op.ID))
	case op.ctx.Err() != nil:
		// The connection context ended underneath the operation; the
		// transport is going away and there is nobody to tell.
		outcome = events.OutcomeTerminated
	default:
		outcome = events.OutcomeError
		s.log.Debug().Err(err).Str("op_id", op.ID).Msg("operation failed")
		_ = s.sink.Send(protocol.Error(op.ID, engine.NewError(err).Errors))
	}
	op.mu.Unlock()
	op.cancel()
	s.publishFinish(op, outcome)
}

func (s *Session) handleStop(id string) {
	op, err := s.registry.Cancel(id)
	if err != nil {
		return
	}
	s.send(protocol.Complete(id))
	s.log.Debug().Str("op_id", id).Msg("operation stopped")
	s.publishFinish(op, events.OutcomeStopped)
}

// teardown moves the session to terminated and cancels every operation.
// It reports whether this call performed the transition.
func (s *Session) teardown(outcome string) bool {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return false
	}
	s.state = StateTerminated
	s.mu.Unlock()

	for _, op := range s.registry.cancelAll() {
		s.publishFinish(op, outcome)
	}
	s.cancel()
	s.log.Debug().Msg("session terminated")
	return true
}

// protocolError reports a bad message. It is scoped to id when id names a
// live operation, otherwise it becomes a connection_error.
func (s *Session) protocolError(id, message string) {
	if id != "" {
		if op, ok := s.registry.Lookup(id); ok {
			op.emit(s.sink.Send, protocol.Error(id, protocol.ErrorPayload{Message: message}))
			return
		}
	}
	s.send(protocol.ConnectionError(message))
}

func (s *Session) send(m protocol.Message) {
	if err := s.sink.Send(m); err != nil {
		s.log.Debug().Err(err).Str("type", string(m.Type)).Msg("send failed")
	}
}

func (s *Session) publishFinish(op *Operation, outcome string) {
	eventbus.Publish(s.ctx, events.OperationFinish{
		ConnectionID: s.id,
		OperationID:  op.ID,
		Outcome:      outcome,
		Results:      op.Results(),
		Duration:     time.Since(op.started),
	})
}

func frameType(m protocol.Message, err error) string {
	if err != nil {
		return "invalid"
	}
	return string(m.Type)
}
