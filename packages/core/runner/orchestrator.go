package runner

import (
	"context"

	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"go.uber.org/zap"
)

// Orchestrator runs a unit tree on the calling goroutine by ticking an
// explicit stack of frames. An Orchestrator is not safe for concurrent use;
// the pool gives each worker its own.
type Orchestrator struct {
	eng    *engine
	frames []frame
}

func NewOrchestrator(opts ...Option) *Orchestrator {
	return &Orchestrator{eng: newEngine(opts...)}
}

// Run executes root and its whole subtree. It returns the first failure
// raised anywhere in the tree as its raw cause, or nil. The failure has
// already been logged.
func (o *Orchestrator) Run(ctx context.Context, root *unit.Unit, sc *env.Context) error {
	if sc == nil {
		sc = env.NewContext()
	}
	if err := o.eng.admit(ctx, root); err != nil {
		o.eng.skip(root, err, true)
		return nil
	}
	_, err := o.run(ctx, root, nil, sc, true)
	return failure.Unmark(err)
}

// run drives u to completion. owner is the unit whose before/after-child
// hooks wrap u. The returned error keeps its already-logged marker.
func (o *Orchestrator) run(ctx context.Context, u, owner *unit.Unit, sc *env.Context, track bool) (unit.Status, error) {
	var (
		status unit.Status
		result error
	)
	o.frames = o.frames[:0]
	o.push(frame{
		unit:   u,
		owner:  owner,
		mode:   modeMain,
		parent: -1,
		sc:     sc,
		track:  track,
		onComplete: func(s unit.Status, err error) {
			status, result = s, err
		},
	})
	for len(o.frames) > 0 {
		o.tick(ctx)
	}
	return status, result
}

func (o *Orchestrator) push(f frame) {
	o.frames = append(o.frames, f)
}

// tick advances the top frame by one phase. Pushing a frame always ends the
// tick, so f is never used after the arena grows.
func (o *Orchestrator) tick(ctx context.Context) {
	top := len(o.frames) - 1
	f := &o.frames[top]

	if !f.initialized {
		f.initialized = true
		o.enter(f)
		return
	}

	switch {
	case !f.beforeChildDone:
		f.beforeChildDone = true
		if f.mode == modeMain && f.owner != nil && f.owner.BeforeChild() != nil {
			o.pushHook(top, f.owner.BeforeChild(), modePreChild)
		}
	case !f.setupDone:
		f.setupDone = true
		if h := f.unit.Setup(); h != nil && !f.blocked {
			f.setupEntered = true
			o.pushHook(top, h, modeSetup)
		}
	case !f.dataSetupDone:
		f.dataSetupDone = true
		if h := f.unit.DataSetup(); h != nil && !f.blocked {
			f.dataSetupEntered = true
			o.pushHook(top, h, modeDataSetup)
		}
	case !f.childrenDone:
		o.children(ctx, top)
	case !f.stepsDone:
		f.stepsDone = true
		o.steps(ctx, f)
	case !f.dataCleanupDone:
		f.dataCleanupDone = true
		if h := f.unit.DataCleanup(); h != nil && f.dataSetupEntered {
			o.pushHook(top, h, modeDataCleanup)
		}
	case !f.cleanupDone:
		f.cleanupDone = true
		if h := f.unit.Cleanup(); h != nil && f.setupEntered {
			o.pushHook(top, h, modeCleanup)
		}
	case !f.afterChildDone:
		f.afterChildDone = true
		if f.mode == modeMain && f.owner != nil && f.owner.AfterChild() != nil {
			o.pushHook(top, f.owner.AfterChild(), modePostChild)
		}
	default:
		o.pop()
	}
}

func (o *Orchestrator) enter(f *frame) {
	if f.track {
		f.unit.Start()
	}
	f.sc.Push(f.unit.Label())
	if r := f.unit.Row(); r != nil {
		f.sc.SetAll(r.Values)
		f.sc.Set("row", r.Values)
	}
	o.eng.sink.Started(f.mode.phase(), f.unit)
	if f.onInit != nil {
		f.onInit()
	}
}

func (o *Orchestrator) pop() {
	top := len(o.frames) - 1
	f := o.frames[top]
	o.frames = o.frames[:top]

	status := f.status()
	f.sc.Pop()
	if f.track {
		f.unit.Finish(status, f.err)
		o.eng.finished(status)
	}
	o.eng.report(f.mode.phase(), f.unit, status, f.err)

	if f.err != nil && f.exceptionHandler != nil {
		f.exceptionHandler(f.err)
	}
	if status.IsHealthy() && f.onSuccess != nil {
		f.onSuccess()
	}
	if f.onComplete != nil {
		f.onComplete(status, f.err)
	}
}

// pushHook runs hook h on behalf of the frame at index parent.
func (o *Orchestrator) pushHook(parent int, h *unit.Unit, m mode) {
	o.push(frame{
		unit:   h,
		mode:   m,
		parent: parent,
		sc:     o.frames[parent].sc,
		exceptionHandler: func(err error) {
			o.frames[parent].fail(err)
		},
		onComplete: func(s unit.Status, _ error) {
			if m.blocking() && (s == unit.Failed || s == unit.Errored) {
				o.frames[parent].blocked = true
			}
		},
	})
}

func (o *Orchestrator) pushChild(parent int, c *unit.Unit) {
	pf := &o.frames[parent]
	sc := pf.sc
	if c.Row() != nil && !pf.unit.SharedContext() {
		sc = sc.Fork()
	}
	o.push(frame{
		unit:   c,
		owner:  pf.unit,
		mode:   modeMain,
		parent: parent,
		sc:     sc,
		track:  pf.track,
		onComplete: func(s unit.Status, err error) {
			o.frames[parent].absorb(c, s, err)
		},
	})
}

// children runs one step of the children phase: loading the child list,
// handing it to a pool, or pushing the next sequential child.
func (o *Orchestrator) children(ctx context.Context, top int) {
	f := &o.frames[top]
	if f.unit.Kind() == unit.Leaf {
		f.childrenDone = true
		return
	}

	if !f.loaded {
		f.loaded = true
		if err := o.load(ctx, f); err != nil {
			f.fail(o.propagate(f, err))
			f.childrenDone = true
			return
		}
		if f.unit.Parallelism() > 1 && !f.blocked {
			o.parallel(ctx, top)
			o.frames[top].childrenDone = true
			return
		}
	}

	if f.childIndex >= len(f.children) {
		f.childrenDone = true
		return
	}
	c := f.children[f.childIndex]
	f.childIndex++

	if f.blocked {
		err := &failure.Skip{Unit: c.Label(), Reason: "a setup hook of " + f.unit.Label() + " did not succeed"}
		o.eng.skip(c, err, f.track)
		f.absorb(c, unit.Skipped, err)
		return
	}
	if err := o.gate(ctx, f, c); err != nil {
		o.eng.skip(c, err, f.track)
		f.absorb(c, unit.Skipped, err)
		return
	}
	o.pushChild(top, c)
}

// load fills f.children. Data-driven units call their provider once.
func (o *Orchestrator) load(ctx context.Context, f *frame) error {
	if f.unit.Kind() != unit.DataDriven {
		f.children = f.unit.Children()
		return nil
	}
	if f.blocked {
		return nil
	}
	rows, err := f.unit.Provider().Rows(ctx)
	if err != nil {
		return failure.Configf(f.unit.Label(), "data provider failed: %v", err)
	}
	if len(rows) == 0 {
		return failure.Configf(f.unit.Label(), "data provider returned no rows")
	}
	f.children = f.unit.MaterializeRows(rows)
	return nil
}

// gate checks whether c may start given the outcome of earlier siblings.
func (o *Orchestrator) gate(ctx context.Context, f *frame, c *unit.Unit) error {
	if err := dependencyFailure(c, func(d *unit.Unit) (unit.Status, bool) {
		s, ok := f.results[d]
		return s, ok
	}); err != nil {
		return err
	}
	if f.track {
		return o.eng.admit(ctx, c)
	}
	return nil
}

// parallel hands the frame's children to a pool. Each worker runs its unit
// with a fresh Orchestrator sharing this run's engine.
func (o *Orchestrator) parallel(ctx context.Context, top int) {
	f := &o.frames[top]
	owner, sc, track := f.unit, f.sc, f.track

	pool := &Pool{
		Parallelism: owner.Parallelism(),
		Limiter:     o.eng.limiter,
		Admit: func(ctx context.Context, c *unit.Unit) error {
			if !track {
				return nil
			}
			return o.eng.admit(ctx, c)
		},
		Skip: func(c *unit.Unit, err error) {
			o.eng.skip(c, err, track)
		},
		Exec: func(ctx context.Context, c *unit.Unit) (unit.Status, error) {
			csc := sc.Branch()
			if c.Row() != nil && !owner.SharedContext() {
				csc = sc.Fork()
			}
			w := &Orchestrator{eng: o.eng}
			return w.run(ctx, c, owner, csc, track)
		},
	}
	for _, out := range pool.Run(ctx, f.children) {
		o.frames[top].absorb(out.Unit, out.Status, out.Err)
	}
}

// steps runs the flat step list of a leaf unit.
func (o *Orchestrator) steps(ctx context.Context, f *frame) {
	u := f.unit
	if f.blocked || u.Kind() != unit.Leaf {
		return
	}
	if len(u.Steps()) == 0 && u.Expect() == nil {
		return
	}

	o.eng.sink.Started(unit.PhaseSteps, u)
	cur := &step.Cursor{}
	err := o.eng.steps.ExecuteNested(ctx, o.log(f), f.sc, u.Steps(), cur)
	f.stepIndex = cur.Index
	if m := u.Expect(); m != nil {
		err = o.expect(f, m, err)
	}
	o.eng.report(unit.PhaseSteps, u, unit.StatusOf(err), err)
	f.fail(err)
}

// expect checks the outcome of a unit's steps against its expected error.
func (o *Orchestrator) expect(f *frame, m unit.ErrorMatcher, err error) error {
	actual := failure.Unmark(err)
	if actual != nil && m.Match(actual) {
		o.log(f).Debug("expected error raised", zap.Error(actual))
		return nil
	}
	mismatch := &failure.ExpectedMismatch{Unit: f.unit.Label(), Expected: m.String(), Actual: actual}
	if err != nil {
		// The step failure itself was already logged.
		return failure.MarkLogged(mismatch)
	}
	return o.propagate(f, mismatch)
}

func (o *Orchestrator) propagate(f *frame, err error) error {
	return failure.Propagate(o.log(f), err, false,
		zap.String("phase", f.mode.phase().String()),
		zap.Strings("stack", f.sc.Stack()))
}

func (o *Orchestrator) log(f *frame) *zap.Logger {
	return o.eng.log.With(zap.String("unit", f.unit.Path()))
}
