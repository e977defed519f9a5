package step

import (
	"context"

	"go.uber.org/zap"
)

// Context is the attribute store a step reads from and writes to.
type Context interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Resolve(input string) string
}

// Step is the smallest executable action of a plan.
type Step interface {
	Name() string
	// Clone returns a copy that may be mutated without touching the template.
	Clone() Step
	// Execute runs the step. The boolean is the verdict of validation steps
	// and is ignored for ordinary ones.
	Execute(ctx context.Context, sc Context, log *zap.Logger) (bool, error)
	LoggingDisabled() bool
}

// Validation is implemented by steps whose boolean result is a pass/fail verdict.
type Validation interface {
	Step
	Validates() bool
}

// Resolvable is implemented by steps carrying {{expr}} placeholders.
type Resolvable interface {
	ResolveExpressions(resolve func(string) string)
}

// Explainer lets a validation step describe why it returned false.
type Explainer interface {
	Explain() string
}

// Cursor reports which step of a list is currently running.
type Cursor struct {
	Index int
	Step  Step
}
