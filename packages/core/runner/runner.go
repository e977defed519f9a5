package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultParallelism is the number of plans RunAll executes at once when the
// config leaves it unset.
const DefaultParallelism = 1

// ErrAlreadyExecuted is returned for trees that were run before. Trees are
// single use and must be rebuilt.
var ErrAlreadyExecuted = errors.New("unit tree was already executed")

type Config struct {
	// Parallelism bounds how many root trees RunAll executes concurrently.
	Parallelism int
	// StartRate limits unit starts per second in parallel groups.
	StartRate float64
	Bail      bool
	// NameFilter selects units by label, see WithNameFilter.
	NameFilter string
}

// Runner executes unit trees and summarizes each run.
type Runner struct {
	config *Config
	opts   []Option
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Runner{config: cfg, opts: opts}
}

// RunResult summarizes one run. Counters cover leaf units, including the
// rows of data-driven units.
type RunResult struct {
	ID       string
	Root     *unit.Unit
	Status   unit.Status
	Duration time.Duration
	Passed   int
	Failed   int
	Errored  int
	Skipped  int
	// Err is the first failure raised in the tree, if any.
	Err error
}

// Total is the number of leaf units counted.
func (r *RunResult) Total() int {
	return r.Passed + r.Failed + r.Errored + r.Skipped
}

func (r *RunResult) OK() bool {
	return r.Status == unit.Successful || r.Status == unit.Skipped
}

// Run executes root against sc. A nil sc gets a fresh context. The error is
// reserved for misuse; failures inside the tree are reported in the result.
func (r *Runner) Run(ctx context.Context, root *unit.Unit, sc *env.Context) (*RunResult, error) {
	if root == nil {
		return nil, fmt.Errorf("nil unit tree")
	}
	if root.Status() != unit.Pending {
		return nil, fmt.Errorf("%s: %w", root.Label(), ErrAlreadyExecuted)
	}
	if sc == nil {
		sc = env.NewContext()
	}

	id := uuid.NewString()
	eng := r.engine(id)
	eng.log.Info("run started", zap.String("root", root.Label()))

	start := time.Now()
	err := (&Orchestrator{eng: eng}).Run(ctx, root, sc)

	res := summarize(root)
	res.ID = id
	res.Duration = time.Since(start)
	res.Err = err

	eng.log.Info("run finished",
		zap.String("status", res.Status.String()),
		zap.Duration("duration", res.Duration),
		zap.Int("passed", res.Passed),
		zap.Int("failed", res.Failed),
		zap.Int("errored", res.Errored),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// RunAll executes independent trees, Config.Parallelism at a time. Each tree
// gets its own fork of sc. Results are in the order of roots.
func (r *Runner) RunAll(ctx context.Context, roots []*unit.Unit, sc *env.Context) ([]*RunResult, error) {
	for _, root := range roots {
		if root == nil {
			return nil, fmt.Errorf("nil unit tree")
		}
		if root.Status() != unit.Pending {
			return nil, fmt.Errorf("%s: %w", root.Label(), ErrAlreadyExecuted)
		}
	}
	if sc == nil {
		sc = env.NewContext()
	}

	parallelism := r.config.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	results := make(map[*unit.Unit]*RunResult, len(roots))
	resultsCh := make(chan *RunResult, len(roots))
	pool := &Pool{
		Parallelism: parallelism,
		Exec: func(ctx context.Context, root *unit.Unit) (unit.Status, error) {
			res, err := r.Run(ctx, root, sc.Fork())
			if err != nil {
				return unit.Errored, err
			}
			resultsCh <- res
			return res.Status, res.Err
		},
	}
	pool.Run(ctx, roots)
	close(resultsCh)
	for res := range resultsCh {
		results[res.Root] = res
	}

	out := make([]*RunResult, len(roots))
	for i, root := range roots {
		out[i] = results[root]
	}
	return out, nil
}

func (r *Runner) engine(runID string) *engine {
	opts := append([]Option{
		WithStartRate(r.config.StartRate),
		WithBail(r.config.Bail),
		WithNameFilter(r.config.NameFilter),
	}, r.opts...)
	eng := newEngine(opts...)
	eng.log = eng.log.With(zap.String("run_id", runID))
	return eng
}

func summarize(root *unit.Unit) *RunResult {
	res := &RunResult{Root: root, Status: root.Status()}
	if !res.Status.IsTerminal() {
		res.Status = unit.Skipped
	}
	root.Walk(func(n *unit.Unit, _ int) bool {
		if len(n.RunChildren()) > 0 {
			return true
		}
		switch n.Status() {
		case unit.Successful:
			res.Passed++
		case unit.Failed:
			res.Failed++
		case unit.Errored:
			res.Errored++
		default:
			res.Skipped++
		}
		return true
	})
	return res
}
