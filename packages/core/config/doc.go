// Package config loads hitplan configuration.
//
// Configuration is read from the first file found among ConfigFilenames, in
// JSON or YAML depending on the extension, then overridden by HITPLAN_*
// environment variables and finally by command line flags through Merge.
package config
