// Package unit defines the execution tree of a plan.
//
// A Unit is a group of child units, a leaf holding a flat step list, or a
// data-driven unit whose provider fans out into one child per row at run
// time. Any unit may also declare setup and cleanup hooks, data-setup and
// data-cleanup hooks, and before/after-child hooks run around each of its
// children. Trees are assembled with a Builder; Build validates the whole
// tree and returns a failure.ConfigurationError for malformed plans. After
// Build only run-time state (status, error, synthesized rows) changes.
package unit
