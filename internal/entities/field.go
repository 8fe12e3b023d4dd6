// Package entities contains the core domain objects for the plant-monitor application
package entities

import (
	"fmt"
	"strconv"
	"time"
)

// Sentinel is written in place of a value the source never supplied
const Sentinel = "-"

// FieldState tells apart a value the source omitted, a value it supplied but
// that failed a check, and a usable value.
type FieldState int

const (
	StateUnknown FieldState = iota
	StateInvalid
	StatePresent
)

func (s FieldState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateInvalid:
		return "invalid"
	case StatePresent:
		return "present"
	default:
		return fmt.Sprintf("FieldState(%d)", int(s))
	}
}

// Field is a single record value in one of the three states
type Field[T any] struct {
	State FieldState
	Value T
}

// Present wraps a usable value
func Present[T any](v T) Field[T] {
	return Field[T]{State: StatePresent, Value: v}
}

// Unknown marks a value the source did not supply
func Unknown[T any]() Field[T] {
	return Field[T]{State: StateUnknown}
}

// Invalid marks a value the source supplied but that could not be accepted
func Invalid[T any]() Field[T] {
	return Field[T]{State: StateInvalid}
}

func (f Field[T]) IsPresent() bool { return f.State == StatePresent }
func (f Field[T]) IsUnknown() bool { return f.State == StateUnknown }
func (f Field[T]) IsInvalid() bool { return f.State == StateInvalid }

// Get returns the value and whether it is present
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.State == StatePresent
}

// OrSentinel returns the text form of the value, the sentinel when the source
// omitted it, and an empty string when it is invalid.
func (f Field[T]) OrSentinel() string {
	switch f.State {
	case StatePresent:
		return formatValue(f.Value)
	case StateUnknown:
		return Sentinel
	default:
		return ""
	}
}

// String renders the field for logs
func (f Field[T]) String() string {
	if f.State == StateInvalid {
		return "<invalid>"
	}
	return f.OrSentinel()
}

// NullableValue returns the value for a nullable column, nil unless present
func (f Field[T]) NullableValue() any {
	if f.State != StatePresent {
		return nil
	}
	return f.Value
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.DateTime)
	default:
		return fmt.Sprint(x)
	}
}
