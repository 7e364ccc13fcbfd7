package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	config "github.com/hanpama/gqlws/internal/config"
	engine "github.com/hanpama/gqlws/internal/engine"
	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
	headers "github.com/hanpama/gqlws/internal/headers"
	reqid "github.com/hanpama/gqlws/internal/reqid"
	"github.com/rs/zerolog"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It extracts requests, runs the resolved engine, and formats responses.
type Handler struct {
	resolver config.Resolver
	log      zerolog.Logger
	opt      Options
	forward  headers.Forwarder
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler. The engine, base context and GraphiQL
// settings are looked up through resolver on every request.
func New(resolver config.Resolver, log zerolog.Logger, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{
		resolver: resolver,
		log:      log,
		opt:      op,
		forward:  headers.NewForwarder(op.MetadataHeaders...),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, rid := reqid.NewContext(ctx)

	resolved, err := h.resolver.Resolve(r)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", rid).Msg("resolve config")
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return
	}

	if acceptsHTML(r.Header.Get("Accept")) {
		h.serveIDE(ctx, w, r, resolved)
		return
	}

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Route: events.RouteGraphQL, Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Route: events.RouteGraphQL, Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "Method Not Allowed", status)
		return
	}

	if h.opt.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes)
	}
	reqs, batch, rerr := extract(r)
	if rerr != nil {
		status = rerr.status
		rerr.write(w, h.opt.Pretty)
		return
	}

	ctx = h.forward.Outgoing(ctx, r.Header, rid)
	bg := &engine.Background{}
	values := engine.NewValues(resolved.Context).With(map[string]any{
		engine.KeyRequest:    r,
		engine.KeyBackground: bg,
	})

	results := make([]*engine.Result, len(reqs))
	for i, req := range reqs {
		results[i] = h.execute(ctx, resolved.Engine, values, req)
		if results[i].HasErrors() {
			status = http.StatusBadRequest
		}
	}
	if batch {
		writeJSON(w, status, results, h.opt.Pretty)
	} else {
		writeJSON(w, status, results[0], h.opt.Pretty)
	}

	// Tasks outlive the request deadline; the response is already out.
	bg.Run(context.WithoutCancel(ctx))
}

func (h *Handler) execute(ctx context.Context, eng engine.Engine, values engine.Values, req GraphQLRequest) *engine.Result {
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName})
	res := eng.Execute(engine.WithValues(ctx, values), engine.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
		Values:        values,
	})
	if res == nil {
		res = &engine.Result{}
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		ErrorCount:    len(res.Errors),
		Duration:      time.Since(start),
	})
	return res
}

// serveIDE answers browsers hitting the GraphQL endpoint. GraphiQL is only
// served here when it has no route of its own.
func (h *Handler) serveIDE(ctx context.Context, w http.ResponseWriter, r *http.Request, resolved config.Resolved) {
	if resolved.GraphiQL == nil || resolved.GraphiQL.Path != "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	renderGraphiQL(ctx, w, r, resolved)
}

// GraphiQL returns a handler serving the IDE on its own route.
func (h *Handler) GraphiQL() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved, err := h.resolver.Resolve(r)
		if err != nil {
			h.log.Error().Err(err).Msg("resolve config")
			http.Error(w, "configuration unavailable", http.StatusInternalServerError)
			return
		}
		if resolved.GraphiQL == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		renderGraphiQL(r.Context(), w, r, resolved)
	})
}

// ------------------ Response formatting ------------------

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	return strings.Contains(accept, "text/html")
}
