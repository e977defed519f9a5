// Package builtin provides the functions available inside {{...}}
// placeholders of a plan.
//
// Available functions:
//   - uuid(): random UUID v4
//   - now(): current time in RFC 3339
//   - date(layout): current UTC date in a Go time layout
//   - timestamp(), timestampMs(): Unix time
//   - random(min, max): random integer in the inclusive range
//   - randomString(length): random alphanumeric string
//   - base64(value), base64Decode(value), sha256(value)
//   - upper(value), lower(value), trim(value)
//   - env(name, default): process environment lookup
package builtin
