package quotes

import (
	"errors"
	"strings"
)

// Failure kinds. Callers wrap them with fmt.Errorf("%w: reason", ...).
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrValidation           = errors.New("validation failed")
	ErrDependencyUnresolved = errors.New("dependency unresolved")
	ErrConfigurationMissing = errors.New("pricing configuration missing")
	ErrExternalSync         = errors.New("external sync failed")
)

// Machine-readable failure codes carried by Result.
const (
	CodeNotFound             = "not_found"
	CodeInvalidState         = "invalid_state"
	CodeValidation           = "validation_failed"
	CodeDependencyUnresolved = "dependency_unresolved"
	CodeConfigurationMissing = "configuration_missing"
	CodeExternalSync         = "external_sync_failed"
	CodeInternal             = "internal"
)

// Code maps err onto its failure code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrDependencyUnresolved):
		return CodeDependencyUnresolved
	case errors.Is(err, ErrConfigurationMissing):
		return CodeConfigurationMissing
	case errors.Is(err, ErrExternalSync):
		return CodeExternalSync
	default:
		return CodeInternal
	}
}

// Result is the tagged outcome returned across the service boundary.
type Result[T any] struct {
	OK     bool   `json:"ok"`
	Data   *T     `json:"data,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NewResult wraps a value/error pair. Internal errors never leak their text.
func NewResult[T any](value T, err error) Result[T] {
	if err == nil {
		return Result[T]{OK: true, Data: &value}
	}
	code := Code(err)
	reason := "internal error"
	if code != CodeInternal {
		reason = Reason(err)
	}
	return Result[T]{Code: code, Reason: reason}
}

// Ack is the payload of operations that only report success.
type Ack struct {
	ID int64 `json:"id"`
}

// Reason strips the kind prefix from an error message, leaving the human-readable part.
func Reason(err error) string {
	msg := err.Error()
	for _, kind := range []error{ErrNotFound, ErrInvalidState, ErrValidation, ErrDependencyUnresolved, ErrConfigurationMissing, ErrExternalSync} {
		prefix := kind.Error() + ": "
		if i := strings.Index(msg, prefix); i >= 0 {
			return msg[i+len(prefix):]
		}
	}
	return msg
}
