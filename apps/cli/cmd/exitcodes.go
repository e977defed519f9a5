package cmd

import "errors"

// Exit codes for hitplan CLI
const (
	// ExitSuccess indicates every unit passed or was skipped
	ExitSuccess = 0

	// ExitTestFailure indicates one or more units failed or errored
	ExitTestFailure = 1

	// ExitParseError indicates a plan could not be loaded
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code of a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by a command to the process exit code.
// Errors without a code are usage errors raised by cobra.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return ExitUsageError
}
