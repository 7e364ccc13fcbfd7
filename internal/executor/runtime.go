package executor

import (
	"context"
	"fmt"
)

// Resolver resolves one field. source is the parent value (nil for query
// and mutation root fields); args are already coerced.
type Resolver func(ctx context.Context, source any, args map[string]any) (any, error)

// SourceResolver produces the event stream of a subscription root field.
// The channel is closed by the producer when the stream ends. ctx is
// cancelled when the subscriber goes away.
type SourceResolver func(ctx context.Context, args map[string]any) (<-chan any, error)

// TypeResolver names the concrete object type of a value of an interface
// or union type.
type TypeResolver func(ctx context.Context, abstractType string, value any) (string, error)

// Config carries the host resolvers.
type Config struct {
	// Resolvers are keyed "Type.field".
	Resolvers map[string]Resolver

	// Sources are keyed "Subscription.field", using the schema's
	// subscription root type name.
	Sources map[string]SourceResolver

	// ResolveType defaults to reading a "__typename" key from map values.
	ResolveType TypeResolver
}

// Key builds a resolver key.
func Key(objectType, field string) string { return objectType + "." + field }

func defaultResolveType(_ context.Context, abstractType string, value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %s from %T", abstractType, value)
}
