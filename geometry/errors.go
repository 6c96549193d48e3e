package geometry

import (
	"errors"
	"fmt"
)

// ConfigError reports configuration that cannot start a crop session,
// most commonly a target size larger than the image.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid crop configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid crop configuration: %s: %s", e.Field, e.Reason)
}

// PreconditionError is returned when an operation needs image metrics that
// have not been received yet.
type PreconditionError struct {
	Op string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: image metrics are not available yet", e.Op)
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// IsPreconditionError reports whether err wraps a *PreconditionError.
func IsPreconditionError(err error) bool {
	var preErr *PreconditionError
	return errors.As(err, &preErr)
}
