// Package errdefs holds the error taxonomy shared by the decision engine.
//
// DataError and ConfigurationError always carry the offending field so
// callers can report it back to the user. ErrUnsolvableExactly and
// ErrBudgetExceeded are sentinels: the first is recoverable through the
// approximate solver, the second is only ever attached to a best-effort
// result.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	ErrData              = errors.New("data error")
	ErrConfiguration     = errors.New("configuration error")
	ErrUnsolvableExactly = errors.New("game is not solvable exactly")
	ErrBudgetExceeded    = errors.New("approximation budget exceeded")
)

// DataError reports missing or invalid input signals.
type DataError struct {
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrData, e.Field, e.Reason)
}

func (e *DataError) Is(target error) bool { return target == ErrData }

// ConfigurationError reports invalid weights, limits or engine options.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func NewData(field, format string, args ...any) error {
	return &DataError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func NewConfiguration(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Field extracts the offending field from a DataError or ConfigurationError
// anywhere in the chain. It returns an empty string for other errors.
func Field(err error) string {
	var dataErr *DataError
	if errors.As(err, &dataErr) {
		return dataErr.Field
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Field
	}

	return ""
}
