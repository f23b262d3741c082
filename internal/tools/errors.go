// ABOUTME: Tool dispatch error types
// ABOUTME: Validation and execution failures are reported as isError results, never as transport faults

package tools

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrToolCollision = errors.New("tool name collision")
	ErrInvalidSchema = errors.New("invalid input schema")

	// ErrToolValidation matches every *ValidationError.
	ErrToolValidation = errors.New("invalid arguments")
	// ErrToolExecution matches every *ExecutionError.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrInvalidArgument is returned by handlers for arguments that pass the
	// schema but make no sense, e.g. an unparsable date. Its message reaches
	// the caller.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError reports arguments that do not match a tool's schema.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrToolValidation }

// ExecutionError wraps an unexpected handler failure. Err is logged, never
// shown to the caller.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrToolExecution }

// InvalidArgument builds an ErrInvalidArgument with a caller-facing message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
