package executor

import (
	language "github.com/hanpama/gqlws/internal/language"
)

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{
		fields: make([]collectedField, 0),
		index:  make(map[string]int),
	}
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields collects fields from a selection set
func collectFields(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet) *collectedFieldMap {
	groupedFields := newCollectedFieldMap()
	visitedFragments := make(map[string]bool)
	collectFieldsImpl(state, objectType, selectionSet, groupedFields, visitedFragments)
	return groupedFields
}

func collectFieldsImpl(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet, groupedFields *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			groupedFields.add(responseName, sel)

		case *language.InlineFragment:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if !doesFragmentTypeApply(state.schema, objectType, sel.TypeCondition) {
				continue
			}
			collectFieldsImpl(state, objectType, sel.SelectionSet, groupedFields, visitedFragments)

		case *language.FragmentSpread:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			fragmentDef := state.document.Fragments.ForName(sel.Name)
			if fragmentDef == nil {
				continue
			}
			if !doesFragmentTypeApply(state.schema, objectType, fragmentDef.TypeCondition) {
				continue
			}
			collectFieldsImpl(state, objectType, fragmentDef.SelectionSet, groupedFields, visitedFragments)
		}
	}
}

// doesFragmentTypeApply reports whether a fragment on condition applies to
// objectType: the same type, or an interface or union it belongs to.
func doesFragmentTypeApply(schema *language.Schema, objectType *language.Definition, condition string) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	abstract := schema.Types[condition]
	if abstract == nil || (abstract.Kind != language.Interface && abstract.Kind != language.Union) {
		return false
	}
	for _, t := range schema.GetPossibleTypes(abstract) {
		if t.Name == objectType.Name {
			return true
		}
	}
	return false
}

// shouldIncludeNode checks if a node should be included based on directives
func shouldIncludeNode(state *executionState, directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := directiveArgument(state, skip, "if").(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := directiveArgument(state, include, "if").(bool); ok && !v {
			return false
		}
	}
	return true
}

func directiveArgument(state *executionState, directive *language.Directive, name string) any {
	arg := directive.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return nil
	}
	v, err := arg.Value.Value(state.variableValues)
	if err != nil {
		return nil
	}
	return v
}
