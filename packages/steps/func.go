package steps

import (
	"context"

	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"go.uber.org/zap"
)

// Func adapts a Go function to a step.
type Func struct {
	base
	fn func(ctx context.Context, sc step.Context) error
}

func NewFunc(name string, fn func(ctx context.Context, sc step.Context) error) *Func {
	return &Func{base: base{name: name}, fn: fn}
}

func (f *Func) Clone() step.Step {
	c := *f
	return &c
}

func (f *Func) Execute(ctx context.Context, sc step.Context, _ *zap.Logger) (bool, error) {
	return true, f.fn(ctx, sc)
}

// Check adapts a Go predicate to a validation step.
type Check struct {
	Func
	pred   func(ctx context.Context, sc step.Context) (bool, string)
	reason string
}

func NewCheck(name string, pred func(ctx context.Context, sc step.Context) (bool, string)) *Check {
	return &Check{Func: Func{base: base{name: name}}, pred: pred}
}

func (c *Check) Validates() bool { return true }

func (c *Check) Clone() step.Step {
	cp := *c
	cp.reason = ""
	return &cp
}

func (c *Check) Execute(ctx context.Context, sc step.Context, _ *zap.Logger) (bool, error) {
	ok, reason := c.pred(ctx, sc)
	c.reason = reason
	return ok, nil
}

func (c *Check) Explain() string { return c.reason }
