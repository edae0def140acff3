package signaling

import (
	"errors"
	"fmt"
)

// ErrAlreadyConnected is returned by Connect when the connection was already started.
var ErrAlreadyConnected = errors.New("signaling connection already started")

// ConfigurationError reports an endpoint URL or transport-security setting that
// cannot be used. It is returned synchronously, before any network activity.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// DecodeError describes an inbound payload that was dropped.
type DecodeError struct {
	Event  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %q payload: %s", e.Event, e.Reason)
}
