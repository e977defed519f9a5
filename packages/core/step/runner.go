package step

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"go.uber.org/zap"
)

// Runner executes step lists on the calling goroutine.
type Runner struct {
	listeners *Listeners
}

func NewRunner(listeners *Listeners) *Runner {
	if listeners == nil {
		listeners = &Listeners{}
	}
	return &Runner{listeners: listeners}
}

// Listeners returns the registry notified for every step.
func (r *Runner) Listeners() *Listeners {
	return r.listeners
}

// Execute runs steps as the top-level caller: a failure is logged once and
// returned as its raw cause.
func (r *Runner) Execute(ctx context.Context, log *zap.Logger, sc Context, steps []Step, cur *Cursor) error {
	return r.execute(ctx, log, sc, steps, cur, true)
}

// ExecuteNested runs steps on behalf of an enclosing frame. A failure is
// logged once and returned still carrying the already-logged marker.
func (r *Runner) ExecuteNested(ctx context.Context, log *zap.Logger, sc Context, steps []Step, cur *Cursor) error {
	return r.execute(ctx, log, sc, steps, cur, false)
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, sc Context, steps []Step, cur *Cursor, topLevel bool) error {
	if log == nil {
		log = zap.NewNop()
	}
	for i, tmpl := range steps {
		s := tmpl.Clone()
		if res, ok := s.(Resolvable); ok && sc != nil {
			res.ResolveExpressions(sc.Resolve)
		}
		if cur != nil {
			cur.Index = i
			cur.Step = s
		}

		if err := r.run(ctx, log, sc, s); err != nil {
			fields := []zap.Field{zap.String("step", s.Name()), zap.Int("index", i)}
			if st, ok := sc.(interface{ Stack() []string }); ok {
				fields = append(fields, zap.Strings("stack", st.Stack()))
			}
			return failure.Propagate(log, err, topLevel, fields...)
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, log *zap.Logger, sc Context, s Step) (err error) {
	stepLog := log.With(zap.String("step", s.Name()))
	if s.LoggingDisabled() {
		stepLog = zap.NewNop()
	}

	r.listeners.started(s)
	stepLog.Debug("step started")

	defer func() {
		if p := recover(); p != nil {
			err = &failure.StepError{Step: s.Name(), Err: fmt.Errorf("panic: %v", p)}
		}
		if err != nil {
			r.listeners.errored(s, err)
			return
		}
		r.listeners.completed(s)
		stepLog.Debug("step completed")
	}()

	ok, execErr := s.Execute(ctx, sc, stepLog)
	if execErr != nil {
		if classified(execErr) {
			return execErr
		}
		return &failure.StepError{Step: s.Name(), Err: execErr}
	}

	if v, isValidation := s.(Validation); isValidation && v.Validates() && !ok {
		vf := &failure.ValidationFailed{Step: s.Name()}
		if ex, hasMsg := s.(Explainer); hasMsg {
			vf.Message = ex.Explain()
		}
		return vf
	}
	return nil
}

// classified reports whether err already belongs to the failure taxonomy.
func classified(err error) bool {
	var (
		se *failure.StepError
		vf *failure.ValidationFailed
		ce *failure.ConfigurationError
		em *failure.ExpectedMismatch
		lg *failure.Logged
	)
	return errors.As(err, &se) || errors.As(err, &vf) || errors.As(err, &ce) ||
		errors.As(err, &em) || errors.As(err, &lg)
}
