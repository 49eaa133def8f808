package sim

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned by controller and input accessors given an
// index outside the valid range. The simulator's state is unchanged when it
// is returned.
var ErrIndexOutOfRange = errors.New("sim: index out of range")

// ConfigError reports an invalid Config at construction time. A simulator
// is never built from an invalid config, and config errors never occur
// mid-run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sim: invalid config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func indexErrorf(kind string, index, count int) error {
	return fmt.Errorf("%w: %s index %d (count %d)", ErrIndexOutOfRange, kind, index, count)
}
