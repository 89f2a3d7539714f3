package types

import (
	"errors"
	"fmt"
)

// ErrConfiguration classifies every configuration failure.
// Use errors.Is(err, ErrConfiguration) rather than matching messages.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports a contradictory or incomplete retrieval setting.
// It is raised before any store call is made.
type ConfigError struct {
	// Field names the offending setting (e.g. "headless", "idfile").
	Field string
	// Msg is the human-readable diagnostic.
	Msg string
	// Err is an optional underlying cause.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigError match ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, msg string) *ConfigError {
	return &ConfigError{Field: field, Msg: msg}
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
