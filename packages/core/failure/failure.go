package failure

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed plan: a dependency cycle, a unit that
// declares both children and steps, or a data provider that yields no rows.
type ConfigurationError struct {
	Unit   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Unit == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in %q: %s", e.Unit, e.Reason)
}

// Configf builds a ConfigurationError for the named unit.
func Configf(unit, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Unit: unit, Reason: fmt.Sprintf(format, args...)}
}

// ValidationFailed is raised when a validation step returns false.
type ValidationFailed struct {
	Step    string
	Message string
}

func (e *ValidationFailed) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("validation failed in step %q", e.Step)
	}
	return fmt.Sprintf("validation failed in step %q: %s", e.Step, e.Message)
}

// StepError wraps any unexpected error (or recovered panic) raised by a step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExpectedMismatch is raised when a unit declared an expected error and the
// error actually raised (possibly none) does not match it.
type ExpectedMismatch struct {
	Unit     string
	Expected string
	Actual   error
}

func (e *ExpectedMismatch) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("unit %q expected error %s but none was raised", e.Unit, e.Expected)
	}
	return fmt.Sprintf("unit %q expected error %s, got: %v", e.Unit, e.Expected, e.Actual)
}

func (e *ExpectedMismatch) Unwrap() error { return e.Actual }

// DependencySkipped records why a unit was skipped without being scheduled.
type DependencySkipped struct {
	Unit       string
	Dependency string
	Status     string
}

func (e *DependencySkipped) Error() string {
	return fmt.Sprintf("unit %q skipped: dependency %q is %s", e.Unit, e.Dependency, e.Status)
}

// Skip records why a unit was not started for a reason other than a
// dependency: a cancelled run, a bail after an earlier failure, a name filter
// or a failed setup of an enclosing unit.
type Skip struct {
	Unit   string
	Reason string
}

func (e *Skip) Error() string {
	return fmt.Sprintf("unit %q skipped: %s", e.Unit, e.Reason)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsValidation reports whether err carries a ValidationFailed.
func IsValidation(err error) bool {
	var target *ValidationFailed
	return errors.As(err, &target)
}

// IsStep reports whether err carries a StepError. A StepError is always an
// error outcome, whatever it wraps.
func IsStep(err error) bool {
	var target *StepError
	return errors.As(err, &target)
}

// IsDependencySkipped reports whether err carries a DependencySkipped.
func IsDependencySkipped(err error) bool {
	var target *DependencySkipped
	return errors.As(err, &target)
}

// IsExpectedMismatch reports whether err carries an ExpectedMismatch.
func IsExpectedMismatch(err error) bool {
	var target *ExpectedMismatch
	return errors.As(err, &target)
}

// IsSkip reports whether err explains a skipped unit, for any reason.
func IsSkip(err error) bool {
	var target *Skip
	return errors.As(err, &target) || IsDependencySkipped(err)
}
