// Package output provides report sinks that render a run for people and CI.
//
// Supported formats:
//   - Console: live, colored terminal output
//   - JSON: the unit tree with statuses and durations
//   - JUnit: JUnit XML for CI integration
//   - TAP: Test Anything Protocol version 13
//
// Every sink implements report.Sink. Buffered formats also implement
// report.Flushable and write nothing until Flush.
package output
