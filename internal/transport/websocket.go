// Package transport serves graphql-ws sessions over WebSocket.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	config "github.com/hanpama/gqlws/internal/config"
	engine "github.com/hanpama/gqlws/internal/engine"
	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
	headers "github.com/hanpama/gqlws/internal/headers"
	protocol "github.com/hanpama/gqlws/internal/protocol"
	reqid "github.com/hanpama/gqlws/internal/reqid"
	session "github.com/hanpama/gqlws/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// KeepAlive is the connection_keep_alive interval. 0 disables it.
	KeepAlive time.Duration

	// WriteTimeout bounds each frame write. 0 means no deadline.
	WriteTimeout time.Duration

	// ReadLimit caps the size of inbound frames. 0 means unlimited.
	ReadLimit int64

	// SendBuffer is the outbound queue length per connection.
	SendBuffer int

	// AllowedOrigins lists accepted Origin values; "*" accepts any. Empty
	// keeps the same-origin check.
	AllowedOrigins []string

	// MetadataHeaders lists upgrade request headers forwarded into gRPC
	// metadata on the connection context.
	MetadataHeaders []string

	// OnConnect validates connection_init params.
	OnConnect session.ConnectFunc
}

type Option func(*Options)

func WithKeepAlive(d time.Duration) Option    { return func(o *Options) { o.KeepAlive = d } }
func WithWriteTimeout(d time.Duration) Option { return func(o *Options) { o.WriteTimeout = d } }
func WithReadLimit(n int64) Option            { return func(o *Options) { o.ReadLimit = n } }
func WithSendBuffer(n int) Option             { return func(o *Options) { o.SendBuffer = n } }
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Options) { o.AllowedOrigins = origins }
}
func WithMetadataHeaders(h ...string) Option { return func(o *Options) { o.MetadataHeaders = h } }
func WithConnect(fn session.ConnectFunc) Option {
	return func(o *Options) { o.OnConnect = fn }
}

// Handler upgrades requests offering the graphql-ws subprotocol and runs a
// session per connection.
type Handler struct {
	resolver config.Resolver
	log      zerolog.Logger
	opt      Options
	forward  headers.Forwarder
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(resolver config.Resolver, log zerolog.Logger, opts ...Option) *Handler {
	op := Options{WriteTimeout: 10 * time.Second, SendBuffer: 64}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{
		resolver: resolver,
		log:      log,
		opt:      op,
		forward:  headers.NewForwarder(op.MetadataHeaders...),
	}
	h.upgrader = websocket.Upgrader{
		Subprotocols:    []string{protocol.Subprotocol},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(op.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opt.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// OffersSubprotocol reports whether r lists the graphql-ws subprotocol.
func OffersSubprotocol(r *http.Request) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == protocol.Subprotocol {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected a WebSocket upgrade", http.StatusBadRequest)
		return
	}
	if !OffersSubprotocol(r) {
		h.log.Debug().Strs("offered", websocket.Subprotocols(r)).Msg("subprotocol negotiation failed")
		http.Error(w, "unsupported WebSocket subprotocol, expected "+protocol.Subprotocol, http.StatusBadRequest)
		return
	}
	resolved, err := h.resolver.Resolve(r)
	if err != nil {
		h.log.Error().Err(err).Msg("resolve config")
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()
	if h.opt.ReadLimit > 0 {
		conn.SetReadLimit(h.opt.ReadLimit)
	}

	id := uuid.NewString()
	ctx := reqid.WithID(r.Context(), id)
	ctx = h.forward.Outgoing(ctx, r.Header, id)
	values := engine.NewValues(resolved.Context).With(map[string]any{
		engine.KeyRequest:      r,
		engine.KeyConnectionID: id,
	})
	h.serve(ctx, id, conn, resolved.Engine, values, r)
}

func (h *Handler) serve(ctx context.Context, id string, conn *websocket.Conn, eng engine.Engine, values engine.Values, r *http.Request) {
	log := h.log.With().Str("conn_id", id).Logger()
	start := time.Now()
	eventbus.Publish(ctx, events.WSConnect{ConnectionID: id, Request: r})
	log.Info().Str("remote", r.RemoteAddr).Msg("graphql-ws connection accepted")

	out := newSink(id, conn, h.opt.SendBuffer, h.opt.WriteTimeout)
	opts := []session.Option{session.WithLogger(h.log)}
	if h.opt.OnConnect != nil {
		opts = append(opts, session.WithConnect(h.opt.OnConnect))
	}
	sess := session.New(ctx, id, eng, values, out, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return out.run(gctx) })
	g.Go(func() error {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			sess.HandleFrame(data)
		}
	})
	g.Go(func() error {
		// Unblocks ReadMessage once any other goroutine has stopped.
		<-gctx.Done()
		return conn.Close()
	})
	if h.opt.KeepAlive > 0 {
		g.Go(func() error {
			t := time.NewTicker(h.opt.KeepAlive)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					sess.KeepAlive()
				}
			}
		})
	}
	err := g.Wait()

	// Close the sink before tearing down so operations blocked on a full
	// queue are released.
	_ = out.Close()
	sess.Disconnect()
	sess.Wait()

	if isNormalClose(err) {
		err = nil
		log.Info().Dur("duration", time.Since(start)).Msg("graphql-ws connection closed")
	} else {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("graphql-ws connection failed")
	}
	eventbus.Publish(ctx, events.WSDisconnect{ConnectionID: id, Duration: time.Since(start), Err: err})
}

func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, ErrSinkClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
