package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("session: not connected")
	ErrAlreadyConnected   = errors.New("session: already connected")
	ErrOutsideSessionTime = errors.New("session: outside of session time")
	ErrSessionDisabled    = errors.New("session: disabled")
)

// ConfigError reports an invalid session setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid session setting %s: %s", e.Field, e.Reason)
}

func configError(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
