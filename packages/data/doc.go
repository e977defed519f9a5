// Package data provides the row sources of data-driven units: inline rows,
// JSON files and SQL queries.
package data
