package executor

import "fmt"

// ExecError is the typed failure a backend primitive returns when one
// attempt goes wrong. The engine catches it exactly once, converts it into
// a failing Result, and classifies it like any other non-zero result.
type ExecError struct {
	msg string
}

// NewExecError builds an ExecError with a formatted message.
func NewExecError(format string, args ...any) *ExecError {
	return &ExecError{msg: fmt.Sprintf(format, args...)}
}

func (e *ExecError) Error() string { return e.msg }

// ConfigError reports a malformed command setting discovered at run time,
// such as a loop_count that does not resolve to a non-negative integer.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not a non-negative integer: %q", e.Field, e.Value)
}

// FatalError is the termination signal for the whole playbook: exit_on_error
// with a failing result, a matched error_if, an unmatched error_if_not, or
// exhausted loop retries. The engine returns it up the stack; only the
// top-level driver decides to stop the process.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return e.Reason }
