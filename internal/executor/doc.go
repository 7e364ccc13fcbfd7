// Package executor implements engine.Engine over a gqlparser schema and a
// map of field resolvers.
//
// # Resolution
//
// Resolvers are keyed "Type.field". A field without a resolver is projected
// from its source value: map keys first, then exported struct fields
// matched case-insensitively. Introspection fields (__schema, __type and the
// fields of the __ types) are answered from the schema itself.
//
// # Execution
//
// Fields are executed depth-first in document order. Values are completed
// against the field type: leaves are serialized, lists completed element by
// element, objects by their merged sub-selections and abstract types after
// the concrete type is resolved. A null in a Non-Null position is reported
// once at its path and propagates to the nearest nullable ancestor.
//
// # Subscriptions
//
// A subscription's single root field is backed by a SourceResolver that
// returns a channel of events. Each event is executed as the root value of
// the operation; the root field's Resolver, when present, maps the event,
// otherwise the event is the field value. Queries and mutations run through
// Subscribe yield a stream with exactly one result.
package executor
