package conformer

import (
	"fmt"
)

// ConfigError reports invalid construction parameters: a blend weight
// outside [0,1], a zero dimension, or unreadable normalization stats.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("conformer: config %s: %s", e.Field, e.Reason)
}

// ShapeMismatchError reports inputs whose dimensions disagree with each
// other or with the model's configured sizes.
type ShapeMismatchError struct {
	Op     string
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("conformer: %s: shape mismatch: %s", e.Op, e.Detail)
}

// InvalidLengthError reports a declared length exceeding the physical
// size of its axis, or a CTC label longer than the encoder output that
// must align to it.
type InvalidLengthError struct {
	Op     string
	Detail string
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("conformer: %s: invalid length: %s", e.Op, e.Detail)
}

func configErrf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func shapeErrf(op, format string, args ...any) *ShapeMismatchError {
	return &ShapeMismatchError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func lengthErrf(op, format string, args ...any) *InvalidLengthError {
	return &InvalidLengthError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
