package descriptor

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is matched by every ConfigError.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConfigError reports a malformed descriptor or pipeline. It is fatal for
// the project it belongs to, never for the whole pass.
type ConfigError struct {
	// Path is the descriptor file, when known.
	Path string
	// Field locates the problem inside the document, e.g. "steps[1].foreach".
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}
