package executor

import (
	"context"
	"fmt"
	"reflect"

	engine "github.com/hanpama/gqlws/internal/engine"
	introspection "github.com/hanpama/gqlws/internal/introspection"
	language "github.com/hanpama/gqlws/internal/language"
)

// Executor runs operations against one schema.
type Executor struct {
	schema *language.Schema
	cfg    Config
}

var _ engine.Engine = (*Executor)(nil)

// New creates an executor for schema.
func New(schema *language.Schema, cfg Config) *Executor {
	if cfg.ResolveType == nil {
		cfg.ResolveType = defaultResolveType
	}
	return &Executor{schema: schema, cfg: cfg}
}

// Schema returns the executable schema.
func (e *Executor) Schema() *language.Schema { return e.schema }

// prepared is a validated operation with coerced variables.
type prepared struct {
	document  *language.QueryDocument
	operation *language.OperationDefinition
	variables map[string]any
}

func (e *Executor) prepare(req engine.Request) (*prepared, language.ErrorList) {
	doc, errs := language.LoadQuery(e.schema, req.Query)
	if len(errs) > 0 {
		return nil, errs
	}
	op := getOperation(doc, req.OperationName)
	if op == nil {
		if req.OperationName != "" {
			return nil, language.ErrorList{language.Errorf("Unknown operation named %q.", req.OperationName)}
		}
		return nil, language.ErrorList{language.Errorf("Must provide operation name if query contains multiple operations.")}
	}
	vars, err := language.CoerceVariables(e.schema, op, req.Variables)
	if err != nil {
		return nil, language.AsErrorList(err)
	}
	return &prepared{document: doc, operation: op, variables: vars}, nil
}

// Execute runs a query or mutation.
func (e *Executor) Execute(ctx context.Context, req engine.Request) *engine.Result {
	p, errs := e.prepare(req)
	if errs != nil {
		return &engine.Result{Errors: errs}
	}
	if p.operation.Operation == language.Subscription {
		return &engine.Result{Errors: language.ErrorList{language.Errorf("Subscriptions are only served over graphql-ws.")}}
	}
	return e.execute(ctx, p, nil, false)
}

func (e *Executor) rootType(op *language.OperationDefinition) *language.Definition {
	switch op.Operation {
	case language.Mutation:
		return e.schema.Mutation
	case language.Subscription:
		return e.schema.Subscription
	default:
		return e.schema.Query
	}
}

// executionState holds the state of one execution.
type executionState struct {
	ctx            context.Context
	schema         *language.Schema
	cfg            *Config
	document       *language.QueryDocument
	variableValues map[string]any
	errors         language.ErrorList
	// event marks the execution of a subscription event; the root value
	// is the event.
	event bool
}

func (e *Executor) newState(ctx context.Context, p *prepared) *executionState {
	return &executionState{
		ctx:            ctx,
		schema:         e.schema,
		cfg:            &e.cfg,
		document:       p.document,
		variableValues: p.variables,
	}
}

func (e *Executor) execute(ctx context.Context, p *prepared, root any, event bool) *engine.Result {
	rootType := e.rootType(p.operation)
	if rootType == nil {
		return &engine.Result{Errors: language.ErrorList{language.Errorf("Schema is not configured for %ss.", p.operation.Operation)}}
	}
	state := e.newState(ctx, p)
	state.event = event

	res := &engine.Result{}
	if data := executeSelectionSet(state, rootType, p.operation.SelectionSet, root, nil); data != nil {
		res.Data = data
	}
	res.Errors = state.errors
	return res
}

// executeSelectionSet executes the fields of selectionSet on objectValue.
// It returns nil when a Non-Null field came back null.
func executeSelectionSet(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet, objectValue any, path language.Path) map[string]any {
	groupedFields := collectFields(state, objectType, selectionSet)
	resultMap := make(map[string]any, len(groupedFields.fields))

	for _, collectedField := range groupedFields.orderedFields() {
		responseName := collectedField.ResponseName
		fields := collectedField.Fields
		fieldPath := appendPath(path, language.PathName(responseName))

		if fields[0].Name == "__typename" {
			resultMap[responseName] = objectType.Name
			continue
		}

		fieldDef := getFieldDefinition(objectType, fields[0])
		if fieldDef == nil {
			state.addError(fields[0], fieldPath, fmt.Sprintf("Cannot query field %q on type %q.", fields[0].Name, objectType.Name))
			continue
		}

		fieldResult := executeField(state, objectType, fieldDef, fields, objectValue, fieldPath)
		if isNullish(fieldResult) {
			if fieldDef.Type.NonNull {
				return nil
			}
			fieldResult = nil
		}
		resultMap[responseName] = fieldResult
	}
	return resultMap
}

func executeField(state *executionState, objectType *language.Definition, fieldDef *language.FieldDefinition, fields []*language.Field, objectValue any, path language.Path) any {
	field := fields[0]
	args, err := coerceArgumentValues(fieldDef, field, state.variableValues)
	if err != nil {
		state.addError(field, path, err.Error())
		return nil
	}
	resolved, err := resolveField(state, objectType, fieldDef, objectValue, args)
	if err != nil {
		state.addFieldError(field, path, err)
		return nil
	}
	return completeValue(state, fieldDef.Type, fields, resolved, path)
}

// resolveField picks the value source for a field: a registered resolver,
// the subscription event, introspection, then projection from the source.
func resolveField(state *executionState, objectType *language.Definition, fieldDef *language.FieldDefinition, source any, args map[string]any) (value any, err error) {
	if r, ok := state.cfg.Resolvers[Key(objectType.Name, fieldDef.Name)]; ok {
		defer func() {
			if p := recover(); p != nil {
				value, err = nil, fmt.Errorf("resolver %s.%s panicked: %v", objectType.Name, fieldDef.Name, p)
			}
		}()
		return r(state.ctx, source, args)
	}
	if state.event && objectType == state.schema.Subscription {
		return source, nil
	}
	if v, ok := introspection.Resolve(state.schema, objectType.Name, fieldDef.Name, source, args); ok {
		return v, nil
	}
	return project(source, fieldDef.Name), nil
}

// completeValue completes a value
func completeValue(state *executionState, fieldType *language.Type, fields []*language.Field, result any, path language.Path) any {
	if fieldType.NonNull {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addError(fields[0], path, fmt.Sprintf("Cannot return null for non-nullable field %s.", pathToString(path)))
			}
			return nil
		}
		inner := *fieldType
		inner.NonNull = false
		// A null here has already been reported at a deeper path.
		return completeValue(state, &inner, fields, result, path)
	}

	if isNullish(result) {
		return nil
	}

	if fieldType.Elem != nil {
		return completeListValue(state, fieldType, fields, result, path)
	}
	typeObj := state.schema.Types[fieldType.NamedType]
	if typeObj == nil {
		state.addError(fields[0], path, fmt.Sprintf("Unknown type: %s", fieldType.NamedType))
		return nil
	}

	switch typeObj.Kind {
	case language.Scalar, language.Enum:
		serialized, err := serializeLeafValue(typeObj, result)
		if err != nil {
			state.addError(fields[0], path, err.Error())
			return nil
		}
		return serialized
	case language.Object:
		return completeObjectValue(state, typeObj, fields, result, path)
	case language.Interface, language.Union:
		return completeAbstractValue(state, typeObj, fields, result, path)
	default:
		state.addError(fields[0], path, fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind))
		return nil
	}
}

// completeListValue completes a list value
func completeListValue(state *executionState, listType *language.Type, fields []*language.Field, result any, path language.Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			state.addError(fields[0], path, fmt.Sprintf("Expected list value, got %T", result))
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := listType.Elem
	completed := make([]any, len(items))
	for i, item := range items {
		v := completeValue(state, inner, fields, item, appendPath(path, language.PathIndex(i)))
		if isNullish(v) {
			if inner.NonNull {
				return nil
			}
			v = nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *language.Definition, fields []*language.Field, result any, path language.Path) any {
	sub := mergeSelectionSets(fields)
	return executeSelectionSet(state, objectType, sub, result, path)
}

func completeAbstractValue(state *executionState, abstractType *language.Definition, fields []*language.Field, result any, path language.Path) any {
	typeName, err := state.cfg.ResolveType(state.ctx, abstractType.Name, result)
	if err != nil {
		state.addFieldError(fields[0], path, err)
		return nil
	}
	for _, possible := range state.schema.GetPossibleTypes(abstractType) {
		if possible.Name == typeName {
			return completeObjectValue(state, possible, fields, result, path)
		}
	}
	state.addError(fields[0], path, fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType.Name, typeName))
	return nil
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" {
		if len(document.Operations) == 1 {
			return document.Operations[0]
		}
		return nil
	}
	return document.Operations.ForName(operationName)
}

func getFieldDefinition(objectType *language.Definition, field *language.Field) *language.FieldDefinition {
	if def := objectType.Fields.ForName(field.Name); def != nil {
		return def
	}
	return field.Definition
}

func pathToString(path language.Path) string {
	result := ""
	for i, elem := range path {
		switch v := elem.(type) {
		case language.PathName:
			if i > 0 {
				result += "."
			}
			result += string(v)
		case language.PathIndex:
			result += fmt.Sprintf("[%d]", int(v))
		}
	}
	return result
}

func appendPath(path language.Path, elem language.PathElement) language.Path {
	newPath := make(language.Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
