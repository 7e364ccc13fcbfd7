package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// ParseQuery parses source without validating it against a schema.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates an SDL document, prelude included.
func LoadSchema(name, source string) (*Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadQuery parses source and validates it against s.
// Validation failures are returned as a non-empty list.
func LoadQuery(s *Schema, source string) (*QueryDocument, ErrorList) {
	return gqlparser.LoadQuery(s, source)
}

// CoerceVariables coerces raw JSON variables against the operation's
// variable definitions.
func CoerceVariables(s *Schema, op *OperationDefinition, vars map[string]any) (map[string]any, error) {
	coerced, err := validator.VariableValues(s, op, vars)
	if err != nil {
		return nil, err
	}
	return coerced, nil
}

// Errorf builds a located-less GraphQL error.
func Errorf(format string, args ...any) *Error {
	return gqlerror.Errorf(format, args...)
}

// AsErrorList flattens err into a GraphQL error list.
func AsErrorList(err error) ErrorList {
	if err == nil {
		return nil
	}
	var list ErrorList
	if errors.As(err, &list) {
		return list
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ErrorList{ge}
	}
	return ErrorList{gqlerror.Wrap(err)}
}
