// Package step runs ordered step lists for the execution engine.
//
// For every step the Runner clones the template, substitutes {{expr}}
// placeholders against the live context, notifies listeners, invokes the
// step and maps its outcome onto the failure taxonomy. Validation steps that
// return false raise failure.ValidationFailed; any other error or panic
// becomes failure.StepError.
package step
