// Package env holds the attribute context shared by the units of a plan run.
//
// A Context stores named variables, resolves {{...}} placeholders
// ({{name}}, {{a.b.c}}, {{$ENV_VAR}}, {{uuid()}}) and tracks the stack of
// unit names currently executing. Values may also be loaded from .env files.
package env
