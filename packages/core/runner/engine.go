package runner

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/report"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// engine is the state shared by every orchestrator of one run.
type engine struct {
	log       *zap.Logger
	sink      report.Sink
	steps     *step.Runner
	listeners []step.Listener
	limiter   *rate.Limiter
	filter    string
	bail      bool
	bailed    atomic.Bool
}

// Option configures an Orchestrator or a Runner.
type Option func(*engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithSink(sink report.Sink) Option {
	return func(e *engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithListeners registers step listeners notified for every step of the run.
func WithListeners(ls ...step.Listener) Option {
	return func(e *engine) { e.listeners = append(e.listeners, ls...) }
}

// WithStartRate limits how many units per second the pool starts. Zero or
// less means unlimited.
func WithStartRate(perSecond float64) Option {
	return func(e *engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithBail skips every unit not yet started once any unit failed.
func WithBail(bail bool) Option {
	return func(e *engine) { e.bail = bail }
}

// WithNameFilter runs only units whose label, or the label of an ancestor
// or descendant, matches pattern. A leading or trailing * matches any
// prefix or suffix.
func WithNameFilter(pattern string) Option {
	return func(e *engine) { e.filter = pattern }
}

func newEngine(opts ...Option) *engine {
	e := &engine{log: zap.NewNop(), sink: report.Nop{}}
	for _, opt := range opts {
		opt(e)
	}
	ls := &step.Listeners{}
	ls.Add(e.listeners...)
	e.steps = step.NewRunner(ls)
	return e
}

// admit decides whether a unit may start. The returned error explains a skip.
func (e *engine) admit(ctx context.Context, u *unit.Unit) error {
	switch {
	case ctx.Err() != nil:
		return &failure.Skip{Unit: u.Label(), Reason: "run cancelled"}
	case e.bail && e.bailed.Load():
		return &failure.Skip{Unit: u.Label(), Reason: "bail after an earlier failure"}
	case e.filter != "" && !selected(u, e.filter):
		return &failure.Skip{Unit: u.Label(), Reason: "filtered out"}
	}
	return nil
}

// finished records the outcome of a tracked unit for bail.
func (e *engine) finished(status unit.Status) {
	if e.bail && (status == unit.Failed || status == unit.Errored) {
		e.bailed.Store(true)
	}
}

// skip marks u and its known descendants SKIPPED and reports them.
func (e *engine) skip(u *unit.Unit, err error, track bool) {
	failure.Log(e.log, err, zap.String("unit", u.Path()))
	msg := err.Error()
	u.Walk(func(n *unit.Unit, _ int) bool {
		if track {
			n.Finish(unit.Skipped, err)
		}
		e.sink.Skipped(unit.PhaseMain, n, msg)
		return true
	})
}

func (e *engine) report(phase unit.Phase, u *unit.Unit, status unit.Status, err error) {
	var msg string
	if err != nil {
		msg = failure.Unmark(err).Error()
	}
	switch status {
	case unit.Successful:
		e.sink.Completed(phase, u)
	case unit.Failed:
		e.sink.Failed(phase, u, msg)
	case unit.Errored:
		e.sink.Errored(phase, u, msg)
	case unit.Skipped:
		e.sink.Skipped(phase, u, msg)
	}
}

// selected reports whether u falls under the name filter.
func selected(u *unit.Unit, pattern string) bool {
	for n := u; n != nil; n = n.Parent() {
		if matchesPattern(n.Label(), pattern) {
			return true
		}
	}
	found := false
	u.Walk(func(n *unit.Unit, _ int) bool {
		if found {
			return false
		}
		found = matchesPattern(n.Label(), pattern)
		return !found
	})
	return found
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	anyPrefix := strings.HasPrefix(pattern, "*")
	anySuffix := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")
	switch {
	case anyPrefix && anySuffix:
		return strings.Contains(name, core)
	case anyPrefix:
		return strings.HasSuffix(name, core)
	case anySuffix:
		return strings.HasPrefix(name, core)
	default:
		return name == pattern
	}
}
