package config

import (
	"net/http"

	engine "github.com/hanpama/gqlws/internal/engine"
)

// GraphiQL holds the settings of the in-browser IDE. A nil *GraphiQL
// disables it.
type GraphiQL struct {
	// Path is the IDE's own route; empty means it is served from the
	// GraphQL endpoint to clients accepting text/html.
	Path             string
	DefaultQuery     string
	DefaultVariables string
	DefaultHeaders   string
}

// Resolved is the configuration in effect for one request or connection.
type Resolved struct {
	Engine engine.Engine
	// Context is the base execution context. Transports copy it before use
	// and never modify it.
	Context           map[string]any
	GraphiQL          *GraphiQL
	Path              string
	SubscriptionsPath string
}

// Resolver selects the configuration for an incoming request.
type Resolver interface {
	Resolve(r *http.Request) (Resolved, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (Resolved, error)

func (f ResolverFunc) Resolve(r *http.Request) (Resolved, error) { return f(r) }

// Static resolves every request to the same configuration.
type Static Resolved

func (s Static) Resolve(*http.Request) (Resolved, error) { return Resolved(s), nil }

// Resolve builds the static configuration described by cfg around eng.
func (cfg File) Resolve(eng engine.Engine) Static {
	out := Static{
		Engine:  eng,
		Context: cfg.Context,
		Path:    cfg.Server.Path,
	}
	if cfg.Subscriptions.Enabled {
		out.SubscriptionsPath = cfg.Subscriptions.Path
	}
	if cfg.GraphiQL.Enabled {
		out.GraphiQL = &GraphiQL{
			Path:             cfg.GraphiQL.Path,
			DefaultQuery:     cfg.GraphiQL.DefaultQuery,
			DefaultVariables: cfg.GraphiQL.DefaultVariables,
			DefaultHeaders:   cfg.GraphiQL.DefaultHeaders,
		}
	}
	return out
}
