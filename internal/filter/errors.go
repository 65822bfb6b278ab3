package filter

import (
	"fmt"
)

// ConfigError reports an invalid construction parameter. Constructors return
// it eagerly so a misconfigured pipeline never reaches Process.
type ConfigError struct {
	Stage  string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Stage, e.Field, e.Reason)
}

func configErr(stage Kind, field, format string, args ...interface{}) error {
	return &ConfigError{Stage: stage.String(), Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StageError wraps a failure raised by a pipeline stage
type StageError struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
