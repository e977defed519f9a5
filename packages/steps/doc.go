// Package steps provides the built-in step kinds of a plan: shell commands,
// variable assignment, assertions, SQL statements, service readiness polls
// and plain Go functions.
package steps
