package executor

import (
	"errors"
	"slices"

	language "github.com/hanpama/gqlws/internal/language"
)

func locationOf(field *language.Field) []language.Location {
	if field == nil || field.Position == nil {
		return nil
	}
	return []language.Location{{Line: field.Position.Line, Column: field.Position.Column}}
}

func (state *executionState) addError(field *language.Field, path language.Path, message string) {
	state.errors = append(state.errors, &language.Error{
		Message:   message,
		Path:      path,
		Locations: locationOf(field),
	})
}

// addFieldError records a resolver failure. GraphQL errors keep their
// message and extensions; path and location are filled in when missing.
func (state *executionState) addFieldError(field *language.Field, path language.Path, err error) {
	var ge *language.Error
	if !errors.As(err, &ge) {
		state.addError(field, path, err.Error())
		return
	}
	out := *ge
	if len(out.Path) == 0 {
		out.Path = path
	}
	if len(out.Locations) == 0 {
		out.Locations = locationOf(field)
	}
	state.errors = append(state.errors, &out)
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (state *executionState) hasErrorAtPath(path language.Path) bool {
	for _, err := range state.errors {
		if slices.Equal(err.Path, path) {
			return true
		}
	}
	return false
}
