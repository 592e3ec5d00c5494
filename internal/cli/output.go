package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dailyalchemy/internal/apperr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation was rejected (validation, conflict, not found)
	ExitCommandError = 2 // the command could not run (config, database, files)
)

// ExitError carries the process exit code for a failed command.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// operationError classifies a service error: engine kinds are rejections,
// anything else means the command itself failed.
func operationError(message string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// emit writes v as indented JSON, or calls text for the text format.
func emit(cmd *cobra.Command, opts *RootOptions, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
