package steps

import "github.com/abdul-hamid-achik/hitplan/packages/core/step"

// base carries the fields every built-in step shares.
type base struct {
	name  string
	quiet bool
}

func (b base) Name() string { return b.name }

func (b base) LoggingDisabled() bool { return b.quiet }

func (b *base) silence() { b.quiet = true }

// Quiet suppresses the step's own log output. Steps not built by this
// package are returned unchanged.
func Quiet(s step.Step) step.Step {
	if q, ok := s.(interface{ silence() }); ok {
		q.silence()
	}
	return s
}

// valueResolver is implemented by contexts that can return a placeholder's
// raw value instead of its string form.
type valueResolver interface {
	ResolveValue(input string) any
}

func resolveValue(sc step.Context, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if vr, ok := sc.(valueResolver); ok {
		return vr.ResolveValue(s)
	}
	return sc.Resolve(s)
}
