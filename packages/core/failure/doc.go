// Package failure defines the error taxonomy used by the execution engine.
//
// It provides:
//   - ConfigurationError for malformed plans, detected at build time
//   - ValidationFailed for validation steps that returned false
//   - StepError for unexpected errors and panics raised by steps
//   - ExpectedMismatch for units whose declared expected error did not occur
//   - DependencySkipped for units whose sibling dependency was not healthy
//   - Skip for units never started because of cancellation, bail or filters
//
// A failure is logged exactly once, by the innermost code that detects it.
// The Logged wrapper marks an error as already reported so outer frames pass
// it along silently; only the top-level caller strips the marker.
package failure
