// Package cmd implements the hitplan CLI commands using Cobra.
//
// Available commands:
//   - run: Execute test plans and write reports and metrics
//   - validate: Build plans without executing them
//   - list: Display the unit tree of plans
//   - init: Create a new hitplan project with an example plan
//   - version: Show hitplan version information
//   - completion: Generate shell completion scripts
//
// Settings come from the config file, HITPLAN_* environment variables and
// flags, in increasing order of precedence. Watch mode re-runs plans when
// their files change.
package cmd
