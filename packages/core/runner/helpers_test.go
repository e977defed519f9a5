package runner

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type trace struct {
	mu      sync.Mutex
	entries []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, s)
}

func (t *trace) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

func (t *trace) index(s string) int {
	return slices.Index(t.all(), s)
}

// fakeStep records its execution and optionally fails.
type fakeStep struct {
	name  string
	tr    *trace
	err   error
	fn    func(ctx context.Context, sc step.Context) error
	quiet bool
	say   string
}

func (p *fakeStep) Name() string          { return p.name }
func (p *fakeStep) Clone() step.Step      { c := *p; return &c }
func (p *fakeStep) LoggingDisabled() bool { return p.quiet }

func (p *fakeStep) Execute(ctx context.Context, sc step.Context, log *zap.Logger) (bool, error) {
	p.tr.add(p.name)
	if p.say != "" {
		log.Info(p.say)
	}
	if p.fn != nil {
		if err := p.fn(ctx, sc); err != nil {
			return false, err
		}
	}
	return true, p.err
}

// check is a validation step with a fixed verdict.
type check struct {
	name string
	ok   bool
}

func (c *check) Name() string          { return c.name }
func (c *check) Clone() step.Step      { cc := *c; return &cc }
func (c *check) LoggingDisabled() bool { return false }
func (c *check) Validates() bool       { return true }
func (c *check) Explain() string       { return "verdict was false" }
func (c *check) Execute(context.Context, step.Context, *zap.Logger) (bool, error) {
	return c.ok, nil
}

func rec(tr *trace, name string) *fakeStep { return &fakeStep{name: name, tr: tr} }

func fail(tr *trace, name, msg string) *fakeStep {
	return &fakeStep{name: name, tr: tr, err: errors.New(msg)}
}

func leaf(tr *trace, name string) *unit.Builder {
	return unit.NewBuilder(name).Steps(rec(tr, name))
}

func rowsOf(names ...string) unit.DataProvider {
	return unit.ProviderFunc(func(context.Context) ([]unit.Row, error) {
		out := make([]unit.Row, 0, len(names))
		for _, n := range names {
			out = append(out, unit.Row{Name: n, Values: map[string]any{"value": n}})
		}
		return out, nil
	})
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func errorEntries(logs *observer.ObservedLogs) int {
	return logs.FilterLevelExact(zap.ErrorLevel).Len()
}
