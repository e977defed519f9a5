package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Outcome is the result of one unit run by a Pool.
type Outcome struct {
	Unit   *unit.Unit
	Status unit.Status
	Err    error
}

// Pool runs a set of sibling units.
type Pool struct {
	// Parallelism is the number of workers. Up to 1 runs the units in
	// declared order on the calling goroutine.
	Parallelism int
	// Limiter, when set, throttles unit starts.
	Limiter *rate.Limiter
	// Exec runs one unit to completion.
	Exec func(ctx context.Context, u *unit.Unit) (unit.Status, error)
	// Admit may veto the start of a unit. The returned error explains the skip.
	Admit func(ctx context.Context, u *unit.Unit) error
	// Skip is told about every unit that is skipped instead of run.
	Skip func(u *unit.Unit, err error)
}

// Run executes units and blocks until each one is terminal. Outcomes are
// returned in declared order.
func (p *Pool) Run(ctx context.Context, units []*unit.Unit) []Outcome {
	if p.Parallelism <= 1 || len(units) <= 1 {
		return p.sequential(ctx, units)
	}
	return p.parallel(ctx, units)
}

// sequential runs units in declared order. Declaration order already encodes
// dependencies, so only the outcome of earlier units is consulted.
func (p *Pool) sequential(ctx context.Context, units []*unit.Unit) []Outcome {
	outs := make([]Outcome, len(units))
	done := make(map[*unit.Unit]unit.Status, len(units))
	for i, u := range units {
		err := dependencyFailure(u, func(d *unit.Unit) (unit.Status, bool) {
			s, ok := done[d]
			return s, ok
		})
		if err == nil {
			err = p.start(ctx, u)
		}
		if err != nil {
			p.skip(u, err)
			outs[i] = Outcome{Unit: u, Status: unit.Skipped, Err: err}
		} else {
			outs[i] = p.exec(ctx, u)
		}
		done[u] = outs[i].Status
	}
	return outs
}

// parallel dispatches units to a fixed set of workers. A unit is queued
// only once every dependency inside the set is terminal; a unit whose
// dependency did not succeed is skipped instead, and the skip cascades.
func (p *Pool) parallel(ctx context.Context, units []*unit.Unit) []Outcome {
	var (
		mu       sync.Mutex
		outs     = make([]Outcome, len(units))
		index    = make(map[*unit.Unit]int, len(units))
		done     = make(map[*unit.Unit]unit.Status, len(units))
		released = make(map[*unit.Unit]bool, len(units))
		queue    = make(chan *unit.Unit, len(units))
		pending  sync.WaitGroup
	)
	for i, u := range units {
		index[u] = i
	}
	pending.Add(len(units))

	lookup := func(d *unit.Unit) (unit.Status, bool) {
		s, ok := done[d]
		return s, ok
	}

	var finish func(out Outcome)
	release := func(u *unit.Unit) {
		mu.Lock()
		if released[u] {
			mu.Unlock()
			return
		}
		for _, d := range u.Dependencies() {
			if _, inSet := index[d]; !inSet {
				continue
			}
			if _, ok := done[d]; !ok {
				mu.Unlock()
				return
			}
		}
		released[u] = true
		err := dependencyFailure(u, lookup)
		mu.Unlock()

		if err != nil {
			p.skip(u, err)
			finish(Outcome{Unit: u, Status: unit.Skipped, Err: err})
			return
		}
		queue <- u
	}
	finish = func(out Outcome) {
		mu.Lock()
		outs[index[out.Unit]] = out
		done[out.Unit] = out.Status
		mu.Unlock()
		for _, d := range out.Unit.Dependents() {
			if _, inSet := index[d]; inSet {
				release(d)
			}
		}
		pending.Done()
	}

	workers := min(p.Parallelism, len(units))
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for u := range queue {
				if err := p.start(ctx, u); err != nil {
					p.skip(u, err)
					finish(Outcome{Unit: u, Status: unit.Skipped, Err: err})
					continue
				}
				finish(p.exec(ctx, u))
			}
			return nil
		})
	}

	for _, u := range units {
		release(u)
	}
	pending.Wait()
	close(queue)
	_ = g.Wait()
	return outs
}

// start applies the admission check and the start-rate limit.
func (p *Pool) start(ctx context.Context, u *unit.Unit) error {
	if p.Admit != nil {
		if err := p.Admit(ctx, u); err != nil {
			return err
		}
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return &failure.Skip{Unit: u.Label(), Reason: "run cancelled"}
		}
	}
	return nil
}

func (p *Pool) exec(ctx context.Context, u *unit.Unit) (out Outcome) {
	out.Unit = u
	defer func() {
		if r := recover(); r != nil {
			out.Status = unit.Errored
			out.Err = &failure.StepError{Step: u.Label(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out.Status, out.Err = p.Exec(ctx, u)
	return out
}

func (p *Pool) skip(u *unit.Unit, err error) {
	if p.Skip != nil {
		p.Skip(u, err)
	}
}

// dependencyFailure returns a DependencySkipped error if a finished
// dependency of u did not succeed. Dependencies without a recorded status
// are ignored.
func dependencyFailure(u *unit.Unit, status func(*unit.Unit) (unit.Status, bool)) error {
	for _, d := range u.Dependencies() {
		s, ok := status(d)
		if ok && !s.IsHealthy() {
			return &failure.DependencySkipped{Unit: u.Label(), Dependency: d.Label(), Status: s.String()}
		}
	}
	return nil
}
