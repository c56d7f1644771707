package domain

import "fmt"

// MigrationError is the result type for per-item migration failures. It
// distinguishes terminal failures (bad input, missing product, rejected
// listing) from retryable ones (transient marketplace or store errors), so
// callers never have to parse error text to decide what to do next.
type MigrationError struct {
	Retryable bool
	Message   string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// TerminalError builds a non-retryable migration error.
func TerminalError(format string, args ...interface{}) *MigrationError {
	return &MigrationError{Message: fmt.Sprintf(format, args...)}
}

// RetryableError wraps a transient failure.
func RetryableError(err error, format string, args ...interface{}) *MigrationError {
	return &MigrationError{Retryable: true, Message: fmt.Sprintf(format, args...), Err: err}
}
