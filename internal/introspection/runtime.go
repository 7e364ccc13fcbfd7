// Package introspection resolves the __schema and __type meta fields and the
// fields of the __Schema, __Type, __Field, __InputValue, __EnumValue and
// __Directive types over a loaded schema.
package introspection

import (
	language "github.com/hanpama/gqlws/internal/language"
)

// Resolve answers an introspection field. handled is false when field is
// not an introspection field for this source, in which case the caller
// falls back to its own resolution.
func Resolve(sch *language.Schema, objectType, field string, source any, args map[string]any) (value any, handled bool) {
	switch src := source.(type) {
	case *language.Schema:
		return resolveSchemaField(src, field)
	case *language.Definition:
		return resolveTypeField(sch, src, field, args)
	case *language.Type:
		return resolveTypeRefField(sch, src, field, args)
	case *language.FieldDefinition:
		return resolveFieldField(src, field, args)
	case *language.ArgumentDefinition:
		return resolveInputValueField(src, field)
	case *language.EnumValueDefinition:
		return resolveEnumValueField(src, field)
	case *language.DirectiveDefinition:
		return resolveDirectiveField(src, field, args)
	}

	if sch.Query != nil && objectType == sch.Query.Name {
		switch field {
		case "__schema":
			return sch, true
		case "__type":
			return resolveTypeQuery(sch, args), true
		}
	}
	return nil, false
}

func resolveTypeQuery(sch *language.Schema, args map[string]any) *language.Definition {
	name, _ := args["name"].(string)
	if name == "" {
		return nil
	}
	return sch.Types[name]
}

func resolveSchemaField(sch *language.Schema, field string) (any, bool) {
	switch field {
	case "types":
		return schemaTypes(sch), true
	case "queryType":
		return sch.Query, true
	case "mutationType":
		return sch.Mutation, true
	case "subscriptionType":
		return sch.Subscription, true
	case "directives":
		return schemaDirectives(sch), true
	case "description":
		return optional(sch.Description), true
	}
	return nil, false
}

func resolveTypeField(sch *language.Schema, t *language.Definition, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL":
		return specifiedBy(t), true
	case "fields":
		return typeFields(t, args), true
	case "interfaces":
		return typeInterfaces(sch, t), true
	case "possibleTypes":
		return possibleTypes(sch, t), true
	case "enumValues":
		return typeEnumValues(t, args), true
	case "inputFields":
		return typeInputFields(t, args), true
	case "isOneOf":
		return t.Kind == language.InputObject && t.Directives.ForName("oneOf") != nil, true
	case "ofType":
		// Named types are never wrappers.
		return nil, true
	}
	return nil, false
}

// resolveTypeRefField handles *Type nodes, which carry the LIST and
// NON_NULL wrappers around a named type.
func resolveTypeRefField(sch *language.Schema, tr *language.Type, field string, args map[string]any) (any, bool) {
	switch {
	case tr.NonNull:
		switch field {
		case "kind":
			return "NON_NULL", true
		case "ofType":
			inner := *tr
			inner.NonNull = false
			return &inner, true
		}
		return nil, true
	case tr.Elem != nil:
		switch field {
		case "kind":
			return "LIST", true
		case "ofType":
			return tr.Elem, true
		}
		return nil, true
	}
	def := sch.Types[tr.NamedType]
	if def == nil {
		return nil, true
	}
	return resolveTypeField(sch, def, field, args)
}

func resolveFieldField(f *language.FieldDefinition, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return optional(f.Description), true
	case "args":
		return filterArgs(f.Arguments, args), true
	case "type":
		return f.Type, true
	case "isDeprecated":
		ok, _ := deprecation(f.Directives)
		return ok, true
	case "deprecationReason":
		_, reason := deprecation(f.Directives)
		return reason, true
	}
	return nil, false
}

func resolveInputValueField(a *language.ArgumentDefinition, field string) (any, bool) {
	switch field {
	case "name":
		return a.Name, true
	case "description":
		return optional(a.Description), true
	case "type":
		return a.Type, true
	case "defaultValue":
		if a.DefaultValue == nil {
			return nil, true
		}
		return a.DefaultValue.String(), true
	case "isDeprecated":
		ok, _ := deprecation(a.Directives)
		return ok, true
	case "deprecationReason":
		_, reason := deprecation(a.Directives)
		return reason, true
	}
	return nil, false
}

func resolveEnumValueField(ev *language.EnumValueDefinition, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return optional(ev.Description), true
	case "isDeprecated":
		ok, _ := deprecation(ev.Directives)
		return ok, true
	case "deprecationReason":
		_, reason := deprecation(ev.Directives)
		return reason, true
	}
	return nil, false
}

func resolveDirectiveField(d *language.DirectiveDefinition, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return optional(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		return directiveLocations(d), true
	case "args":
		return filterArgs(d.Arguments, args), true
	}
	return nil, false
}

func boolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func specifiedBy(t *language.Definition) *string {
	d := t.Directives.ForName("specifiedBy")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
		return optional(arg.Value.Raw)
	}
	return nil
}
