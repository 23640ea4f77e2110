package contracts

import (
	"errors"
	"fmt"
)

var ErrUnknownTool = errors.New("unknown tool")

// DecodeError reports source bytes that are not a readable image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("decode %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a request field outside its contract range.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// EncodeError reports a failure to produce the output container.
type EncodeError struct {
	Format Format
	Mode   ColorMode
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s from mode %s: %v", e.Format, e.Mode, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func Invalid(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}
