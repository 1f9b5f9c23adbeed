package model

import (
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by ParseError when a required attribute is absent.
var ErrMissingField = errors.New("missing required field")

// ParseError reports a raw lookup document that could not be turned into an
// entity.
type ParseError struct {
	Entity string
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parsing %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("parsing %s: field %q: %v", e.Entity, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func missing(entity, field string) error {
	return &ParseError{Entity: entity, Field: field, Err: ErrMissingField}
}
