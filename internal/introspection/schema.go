package introspection

import (
	"sort"

	language "github.com/hanpama/gqlws/internal/language"
)

func schemaTypes(sch *language.Schema) []*language.Definition {
	out := make([]*language.Definition, 0, len(sch.Types))
	for _, t := range sch.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func schemaDirectives(sch *language.Schema) []*language.DirectiveDefinition {
	out := make([]*language.DirectiveDefinition, 0, len(sch.Directives))
	for _, d := range sch.Directives {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// typeFields lists the fields of an object or interface in declaration
// order, meta fields excluded.
func typeFields(t *language.Definition, args map[string]any) []*language.FieldDefinition {
	if t.Kind != language.Object && t.Kind != language.Interface {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.FieldDefinition{}
	for _, f := range t.Fields {
		if len(f.Name) > 1 && f.Name[:2] == "__" {
			continue
		}
		if dep, _ := deprecation(f.Directives); dep && !includeDeprecated {
			continue
		}
		out = append(out, f)
	}
	return out
}

func typeInterfaces(sch *language.Schema, t *language.Definition) []*language.Definition {
	if t.Kind != language.Object && t.Kind != language.Interface {
		return nil
	}
	out := make([]*language.Definition, 0, len(t.Interfaces))
	for _, name := range t.Interfaces {
		if def := sch.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	return out
}

func possibleTypes(sch *language.Schema, t *language.Definition) []*language.Definition {
	if t.Kind != language.Interface && t.Kind != language.Union {
		return nil
	}
	out := append([]*language.Definition(nil), sch.GetPossibleTypes(t)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func typeEnumValues(t *language.Definition, args map[string]any) []*language.EnumValueDefinition {
	if t.Kind != language.Enum {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.EnumValueDefinition{}
	for _, ev := range t.EnumValues {
		if dep, _ := deprecation(ev.Directives); dep && !includeDeprecated {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func typeInputFields(t *language.Definition, args map[string]any) []*language.ArgumentDefinition {
	if t.Kind != language.InputObject {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.ArgumentDefinition{}
	for _, f := range t.Fields {
		if dep, _ := deprecation(f.Directives); dep && !includeDeprecated {
			continue
		}
		out = append(out, &language.ArgumentDefinition{
			Description:  f.Description,
			Name:         f.Name,
			DefaultValue: f.DefaultValue,
			Type:         f.Type,
			Directives:   f.Directives,
			Position:     f.Position,
		})
	}
	return out
}

func filterArgs(defs []*language.ArgumentDefinition, args map[string]any) []*language.ArgumentDefinition {
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.ArgumentDefinition{}
	for _, a := range defs {
		if dep, _ := deprecation(a.Directives); dep && !includeDeprecated {
			continue
		}
		out = append(out, a)
	}
	return out
}

func directiveLocations(d *language.DirectiveDefinition) []string {
	locs := make([]string, len(d.Locations))
	for i, l := range d.Locations {
		locs[i] = string(l)
	}
	return locs
}

// deprecation reads @deprecated. A directive without a reason gets the
// default reason.
func deprecation(directives language.DirectiveList) (bool, *string) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, nil
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return true, &reason
}
