package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran but the outcome was bad (sync stopped, items failed)
	ExitCommandError = 2 // bad flags, unreadable config, unopenable database
)

// ExitError carries the exit code a command should end the process with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// printResult writes data as indented JSON, or calls text for the human
// rendering.
func printResult(w io.Writer, format string, data any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(w)
	return nil
}
