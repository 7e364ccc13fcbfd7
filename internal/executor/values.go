package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	language "github.com/hanpama/gqlws/internal/language"
)

// coerceArgumentValues builds the argument map of a field. Variables have
// already been coerced; literals are converted and defaults applied.
func coerceArgumentValues(fieldDef *language.FieldDefinition, field *language.Field, variableValues map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(fieldDef.Arguments))
	for _, argDef := range fieldDef.Arguments {
		var (
			val      any
			hasValue bool
		)
		if arg := field.Arguments.ForName(argDef.Name); arg != nil && arg.Value != nil {
			if arg.Value.Kind == language.Variable {
				val, hasValue = variableValues[arg.Value.Raw]
			} else {
				v, err := arg.Value.Value(variableValues)
				if err != nil {
					return nil, fmt.Errorf("argument %q: %w", argDef.Name, err)
				}
				val, hasValue = v, true
			}
		}
		if !hasValue && argDef.DefaultValue != nil {
			v, err := argDef.DefaultValue.Value(nil)
			if err != nil {
				return nil, fmt.Errorf("argument %q default: %w", argDef.Name, err)
			}
			val, hasValue = v, true
		}
		if !hasValue {
			if argDef.Type.NonNull {
				return nil, fmt.Errorf("argument %q of required type %s was not provided", argDef.Name, argDef.Type.String())
			}
			continue
		}
		if val == nil && argDef.Type.NonNull {
			return nil, fmt.Errorf("argument %q of type %s cannot be null", argDef.Name, argDef.Type.String())
		}
		coerced[argDef.Name] = val
	}
	return coerced, nil
}

// serializeLeafValue turns a resolved scalar or enum into a JSON-safe value.
// Custom scalars pass through unchanged.
func serializeLeafValue(def *language.Definition, value any) (any, error) {
	if def.Kind == language.Enum {
		name, ok := stringValue(value)
		if !ok || def.EnumValues.ForName(name) == nil {
			return nil, fmt.Errorf("Enum %q cannot represent value: %v", def.Name, value)
		}
		return name, nil
	}
	switch def.Name {
	case "Int":
		n, ok := intValue(value)
		if !ok || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, fmt.Errorf("Int cannot represent value: %v", value)
		}
		return int(n), nil
	case "Float":
		f, ok := floatValue(value)
		if !ok {
			return nil, fmt.Errorf("Float cannot represent value: %v", value)
		}
		return f, nil
	case "String":
		if s, ok := stringValue(value); ok {
			return s, nil
		}
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		}
		if f, ok := floatValue(value); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return nil, fmt.Errorf("String cannot represent value: %v", value)
	case "Boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("Boolean cannot represent value: %v", value)
		}
		return b, nil
	case "ID":
		if s, ok := stringValue(value); ok {
			return s, nil
		}
		if n, ok := intValue(value); ok {
			return strconv.FormatInt(n, 10), nil
		}
		return nil, fmt.Errorf("ID cannot represent value: %v", value)
	}
	return value, nil
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case float32, float64:
		f, _ := floatValue(t)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// project reads field name from a map or struct source.
func project(source any, name string) any {
	switch s := source.(type) {
	case nil:
		return nil
	case map[string]any:
		return s[name]
	}
	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	case reflect.Struct:
		f := rv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
		if !f.IsValid() || !f.CanInterface() {
			return nil
		}
		return f.Interface()
	}
	return nil
}

// ArgInt reads an integer argument, as produced by literal or variable
// coercion.
func ArgInt(args map[string]any, name string) (int, bool) {
	n, ok := intValue(args[name])
	return int(n), ok
}

// ArgString reads a string argument.
func ArgString(args map[string]any, name string) (string, bool) {
	s, ok := args[name].(string)
	return s, ok
}
