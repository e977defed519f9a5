package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/report"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func siblings(t *testing.T, names ...string) []*unit.Unit {
	t.Helper()
	b := unit.NewBuilder("root")
	for _, n := range names {
		b.Child(unit.NewBuilder(n))
	}
	return build(t, b).Children()
}

func TestPool_ParallelRunsConcurrently(t *testing.T) {
	tr := &trace{}
	var started atomic.Int32
	release := make(chan struct{})
	wait := func(context.Context, step.Context) error {
		if started.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("siblings did not run concurrently")
		}
	}
	b := unit.NewBuilder("suite").Parallelism(3)
	for i := 1; i <= 3; i++ {
		b.Child(unit.NewBuilder(fmt.Sprintf("case-%d", i)).Steps(&fakeStep{name: "wait", tr: tr, fn: wait}))
	}
	root := build(t, b)

	require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
	assert.Equal(t, unit.Successful, root.Status())
	for _, c := range root.Children() {
		assert.Equal(t, unit.Successful, c.Status())
	}
}

func TestPool_DependencyGating(t *testing.T) {
	tr := &trace{}
	a := unit.NewBuilder("a").Steps(&fakeStep{name: "a-start", tr: tr, fn: func(context.Context, step.Context) error {
		time.Sleep(30 * time.Millisecond)
		tr.add("a-end")
		return nil
	}})
	b := unit.NewBuilder("b").DependsOn(a).Steps(rec(tr, "b-start"))
	c := leaf(tr, "c")
	root := build(t, unit.NewBuilder("suite").Parallelism(3).Child(b, a, c))

	require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
	require.NotEqual(t, -1, tr.index("b-start"))
	assert.Less(t, tr.index("a-end"), tr.index("b-start"))
	assert.Equal(t, unit.Successful, root.Status())
}

func TestPool_DependencyFailureIsContagious(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			tr := &trace{}
			sink := &report.Recorder{}
			a := unit.NewBuilder("a").Steps(fail(tr, "a", "boom"))
			b := unit.NewBuilder("b").DependsOn(a).Steps(rec(tr, "b"))
			c := unit.NewBuilder("c").DependsOn(b).Steps(rec(tr, "c"))
			d := leaf(tr, "d")
			root := build(t, unit.NewBuilder("suite").Parallelism(parallelism).Child(a, b, c, d))

			err := NewOrchestrator(WithSink(sink)).Run(context.Background(), root, nil)
			require.Error(t, err)

			ua, ub, uc, ud := root.Children()[0], root.Children()[1], root.Children()[2], root.Children()[3]
			assert.Equal(t, unit.Errored, ua.Status())
			assert.Equal(t, unit.Skipped, ub.Status())
			assert.Equal(t, unit.Skipped, uc.Status())
			assert.Equal(t, unit.Successful, ud.Status())
			assert.Equal(t, unit.Errored, root.Status())
			assert.NotContains(t, tr.all(), "b")
			assert.NotContains(t, tr.all(), "c")

			var ds *failure.DependencySkipped
			require.ErrorAs(t, uc.Err(), &ds)
			assert.Equal(t, "b", ds.Dependency)
			assert.Equal(t, "SKIPPED", ds.Status)
			assert.Len(t, sink.Filter(report.KindSkipped, "suite/b"), 1)
			assert.Empty(t, sink.Filter(report.KindStarted, "suite/b"))
		})
	}
}

func TestPool_RunDirect(t *testing.T) {
	units := siblings(t, "u1", "u2", "u3", "u4", "u5", "u6")

	t.Run("bounded parallelism", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		p := &Pool{
			Parallelism: 2,
			Exec: func(ctx context.Context, u *unit.Unit) (unit.Status, error) {
				n := inFlight.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return unit.Successful, nil
			},
		}
		outs := p.Run(context.Background(), units)
		require.Len(t, outs, len(units))
		for i, out := range outs {
			assert.Same(t, units[i], out.Unit)
			assert.Equal(t, unit.Successful, out.Status)
		}
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("sequential order", func(t *testing.T) {
		var order []string
		p := &Pool{Exec: func(_ context.Context, u *unit.Unit) (unit.Status, error) {
			order = append(order, u.Label())
			return unit.Successful, nil
		}}
		p.Run(context.Background(), units)
		assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5", "u6"}, order)
	})

	t.Run("panic becomes errored", func(t *testing.T) {
		p := &Pool{Parallelism: 3, Exec: func(_ context.Context, u *unit.Unit) (unit.Status, error) {
			if u.Label() == "u2" {
				panic("worker exploded")
			}
			return unit.Successful, nil
		}}
		outs := p.Run(context.Background(), units)
		assert.Equal(t, unit.Errored, outs[1].Status)
		assert.ErrorContains(t, outs[1].Err, "worker exploded")
		assert.Equal(t, unit.Successful, outs[2].Status)
	})

	t.Run("admission veto", func(t *testing.T) {
		var skipped []string
		p := &Pool{
			Parallelism: 2,
			Exec:        func(context.Context, *unit.Unit) (unit.Status, error) { return unit.Successful, nil },
			Admit: func(_ context.Context, u *unit.Unit) error {
				if u.Label() == "u3" {
					return &failure.Skip{Unit: u.Label(), Reason: "filtered out"}
				}
				return nil
			},
			Skip: func(u *unit.Unit, _ error) { skipped = append(skipped, u.Label()) },
		}
		outs := p.Run(context.Background(), units)
		assert.Equal(t, unit.Skipped, outs[2].Status)
		assert.Equal(t, []string{"u3"}, skipped)
	})
}

func TestPool_StartRate(t *testing.T) {
	units := siblings(t, "a", "b", "c")
	p := &Pool{
		Parallelism: 3,
		Limiter:     rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
		Exec:        func(context.Context, *unit.Unit) (unit.Status, error) { return unit.Successful, nil },
	}
	start := time.Now()
	p.Run(context.Background(), units)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPool_CancelledWhileWaiting(t *testing.T) {
	units := siblings(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		Limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
		Exec: func(context.Context, *unit.Unit) (unit.Status, error) {
			cancel()
			return unit.Successful, nil
		},
	}
	outs := p.Run(ctx, units)
	assert.Equal(t, unit.Successful, outs[0].Status)
	assert.Equal(t, unit.Skipped, outs[1].Status)
	assert.True(t, failure.IsSkip(outs[1].Err))
}
