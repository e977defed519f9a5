// Package assertions compares values for validation steps.
//
// An Assertion names a subject, looked up through the caller's Lookup, an
// operator and an expected value. Supported operators:
//   - equals, notEquals (==, !=), with numeric and string coercion
//   - gt, gte, lt, lte (>, >=, <, <=)
//   - contains, notContains, startsWith, endsWith, matches
//   - exists, notExists
//   - length, includes, notIncludes, in, notIn
//   - type (null, boolean, number, string, array, object)
//   - schema: JSON Schema validation against a file
//   - each: applies a nested operator to every element of an array
package assertions
