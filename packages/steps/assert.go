package steps

import (
	"context"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/assertions"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"go.uber.org/zap"
)

// Assert is a validation step. A subject is either a variable name, looked
// up through the context, or an expression containing placeholders.
type Assert struct {
	base
	Checks  []assertions.Assertion
	BaseDir string

	failures []string
}

func NewAssert(name string, checks ...assertions.Assertion) *Assert {
	if name == "" {
		name = "assert"
	}
	return &Assert{base: base{name: name}, Checks: checks}
}

func (a *Assert) Validates() bool { return true }

func (a *Assert) Clone() step.Step {
	c := *a
	c.Checks = append([]assertions.Assertion(nil), a.Checks...)
	c.failures = nil
	return &c
}

func (a *Assert) ResolveExpressions(resolve func(string) string) {
	for i := range a.Checks {
		if s, ok := a.Checks[i].Expected.(string); ok {
			a.Checks[i].Expected = resolve(s)
		}
	}
}

func (a *Assert) Execute(_ context.Context, sc step.Context, log *zap.Logger) (bool, error) {
	ev := assertions.NewEvaluator(subjectLookup(sc), assertions.WithBaseDir(a.BaseDir))
	a.failures = a.failures[:0]
	for _, res := range ev.EvaluateAll(a.Checks) {
		if res.Passed {
			continue
		}
		log.Debug("assertion failed",
			zap.String("subject", res.Subject),
			zap.String("operator", res.Operator),
			zap.Any("expected", res.Expected),
			zap.Any("actual", res.Actual))
		a.failures = append(a.failures, res.Subject+": "+res.Message)
	}
	return len(a.failures) == 0, nil
}

func (a *Assert) Explain() string {
	return strings.Join(a.failures, "; ")
}

func subjectLookup(sc step.Context) assertions.Lookup {
	return func(subject string) (any, bool) {
		if strings.Contains(subject, "{{") {
			v := resolveValue(sc, subject)
			if s, ok := v.(string); ok && strings.Contains(s, "{{") {
				return nil, false
			}
			return v, true
		}
		return sc.Get(subject)
	}
}
