// Package runner executes unit trees.
//
// An Orchestrator walks one tree with an explicit stack of frames instead of
// native recursion. Each frame advances through the phases of its unit one
// tick at a time: before-child, setup, data-setup, children, steps,
// data-cleanup, cleanup and after-child. A Pool runs groups of sibling units
// either sequentially or on a bounded set of workers, starting each unit
// only after its dependencies finished; every worker drives its own
// Orchestrator. Runner ties both together and summarizes a run.
package runner
