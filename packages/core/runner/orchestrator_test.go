package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/report"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, b *unit.Builder) *unit.Unit {
	t.Helper()
	u, err := b.Build()
	require.NoError(t, err)
	return u
}

func TestOrchestrator_PhaseOrder(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("root").
		Setup(leaf(tr, "setup")).
		Cleanup(leaf(tr, "cleanup")).
		BeforeChild(leaf(tr, "before")).
		AfterChild(leaf(tr, "after")).
		Child(leaf(tr, "c1"), leaf(tr, "c2")))

	sink := &report.Recorder{}
	err := NewOrchestrator(WithSink(sink)).Run(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"setup", "before", "c1", "after", "before", "c2", "after", "cleanup"}, tr.all())
	assert.Equal(t, unit.Successful, root.Status())
	assert.Len(t, inPhase(sink.Filter(report.KindCompleted, "root/before"), unit.PhasePreChild), 2)
	assert.Len(t, inPhase(sink.Filter(report.KindCompleted, "root/after"), unit.PhasePostChild), 2)
	assert.Len(t, inPhase(sink.Filter(report.KindCompleted, "root/setup"), unit.PhaseSetup), 1)
	assert.Len(t, inPhase(sink.Filter(report.KindCompleted, "root/cleanup"), unit.PhaseCleanup), 1)
	assert.Len(t, sink.Filter(report.KindCompleted, "root/c1"), 2, "steps and main phase")
}

func inPhase(events []report.Event, p unit.Phase) []report.Event {
	var out []report.Event
	for _, e := range events {
		if e.Phase == p {
			out = append(out, e)
		}
	}
	return out
}

func TestOrchestrator_CleanupRunsAfterSetupFailure(t *testing.T) {
	tr := &trace{}
	log, logs := observed()
	root := build(t, unit.NewBuilder("root").
		Setup(unit.NewBuilder("setup").Steps(fail(tr, "connect", "db down"))).
		Cleanup(leaf(tr, "cleanup")).
		Child(leaf(tr, "c1")))

	err := NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil)

	var se *failure.StepError
	require.ErrorAs(t, err, &se)
	assert.False(t, failure.IsLogged(err), "top level returns the raw cause")
	assert.Equal(t, []string{"connect", "cleanup"}, tr.all())
	assert.Equal(t, unit.Errored, root.Status())
	assert.Equal(t, unit.Skipped, root.Children()[0].Status())
	assert.Equal(t, 1, errorEntries(logs))
}

func TestOrchestrator_CleanupRunsAfterStepFailure(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("case").
		Setup(leaf(tr, "setup")).
		Cleanup(leaf(tr, "cleanup")).
		Steps(fail(tr, "s1", "boom"), rec(tr, "s2")))

	err := NewOrchestrator().Run(context.Background(), root, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"setup", "s1", "cleanup"}, tr.all())
	assert.Equal(t, unit.Errored, root.Status())
}

func TestOrchestrator_StepErrorWrappingSkipIsErrored(t *testing.T) {
	tr := &trace{}
	log, logs := observed()
	cause := errors.Join(errors.New("db down"), &failure.Skip{Unit: "case", Reason: "bail"})
	root := build(t, unit.NewBuilder("suite").Child(
		unit.NewBuilder("case").Steps(&fakeStep{name: "query", tr: tr, err: cause}),
	))

	err := NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil)

	var se *failure.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, unit.Errored, root.Children()[0].Status())
	assert.Equal(t, unit.Errored, root.Status())
	assert.Equal(t, 1, errorEntries(logs))
}

func TestOrchestrator_NoCleanupWithoutSetup(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("root").
		BeforeChild(unit.NewBuilder("before").Steps(fail(tr, "before", "nope"))).
		AfterChild(leaf(tr, "after")).
		Child(unit.NewBuilder("c1").
			Setup(leaf(tr, "c1-setup")).
			Cleanup(leaf(tr, "c1-cleanup")).
			Steps(rec(tr, "c1"))))

	err := NewOrchestrator().Run(context.Background(), root, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"before", "after"}, tr.all())
	assert.Equal(t, unit.Errored, root.Children()[0].Status())
}

func TestOrchestrator_ValidationFailure(t *testing.T) {
	sink := &report.Recorder{}
	log, logs := observed()
	root := build(t, unit.NewBuilder("root").Child(
		unit.NewBuilder("bad").Steps(&check{name: "status is 200", ok: false}),
		unit.NewBuilder("good").Steps(&check{name: "always", ok: true}),
	))

	err := NewOrchestrator(WithSink(sink), WithLogger(log)).Run(context.Background(), root, nil)
	assert.True(t, failure.IsValidation(err))
	assert.Equal(t, unit.Failed, root.Status())
	assert.Equal(t, unit.Successful, root.Children()[1].Status())

	failed := sink.Filter(report.KindFailed, "root/bad")
	require.NotEmpty(t, failed)
	assert.Equal(t, unit.PhaseSteps, failed[0].Phase)
	assert.Contains(t, failed[0].Message, "verdict was false")
	assert.Empty(t, sink.Filter(report.KindErrored, ""))
	assert.Equal(t, 0, errorEntries(logs))
	assert.Equal(t, 1, logs.FilterMessage("validation failed").Len())
}

func TestOrchestrator_DataFanOut(t *testing.T) {
	for _, shared := range []bool{false, true} {
		t.Run(fmt.Sprintf("shared=%v", shared), func(t *testing.T) {
			tr := &trace{}
			tmpl := &fakeStep{name: "row", tr: tr, fn: func(_ context.Context, sc step.Context) error {
				v, _ := sc.Get("value")
				tr.add(fmt.Sprint(v))
				sc.Set("last", v)
				return nil
			}}
			data := unit.NewBuilder("data").Rows(rowsOf("x", "y", "z"), tmpl).SharedContext(shared)
			root := build(t, unit.NewBuilder("root").Child(data))

			sc := env.NewContext()
			require.NoError(t, NewOrchestrator().Run(context.Background(), root, sc))

			du := root.Children()[0]
			require.Len(t, du.Rows(), 3)
			for _, r := range du.Rows() {
				assert.Equal(t, unit.Successful, r.Status())
			}
			assert.Equal(t, []string{"row", "x", "row", "y", "row", "z"}, tr.all())

			last, ok := sc.Get("last")
			if shared {
				assert.True(t, ok)
				assert.Equal(t, "z", last)
			} else {
				assert.False(t, ok, "rows run in isolated contexts")
			}
		})
	}
}

func TestOrchestrator_DataHooks(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("data").
		DataSetup(leaf(tr, "load")).
		DataCleanup(leaf(tr, "unload")).
		Rows(rowsOf("a", "b"), rec(tr, "row")))

	require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
	assert.Equal(t, []string{"load", "row", "row", "unload"}, tr.all())
}

func TestOrchestrator_EmptyProviderErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider unit.DataProvider
	}{
		{"no rows", rowsOf()},
		{"provider error", unit.ProviderFunc(func(context.Context) ([]unit.Row, error) {
			return nil, errors.New("file missing")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trace{}
			log, logs := observed()
			root := build(t, unit.NewBuilder("root").Child(unit.NewBuilder("data").Rows(tt.provider, rec(tr, "row"))))

			err := NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil)
			assert.True(t, failure.IsConfiguration(err))
			assert.Equal(t, unit.Errored, root.Status())
			assert.Equal(t, unit.Errored, root.Children()[0].Status())
			assert.Empty(t, tr.all())
			assert.Empty(t, root.Children()[0].Rows())
			assert.Equal(t, 1, errorEntries(logs))
		})
	}
}

func TestOrchestrator_DeepNesting(t *testing.T) {
	tr := &trace{}
	b := leaf(tr, "bottom")
	for i := 0; i < 5000; i++ {
		b = unit.NewBuilder(fmt.Sprintf("level-%d", i)).Child(b)
	}
	root := build(t, b)

	require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
	assert.Equal(t, []string{"bottom"}, tr.all())
	assert.Equal(t, unit.Successful, root.Status())
}

func TestOrchestrator_SequentialOrder(t *testing.T) {
	tr := &trace{}
	b := unit.NewBuilder("root")
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("c%d", i)
		b.Child(unit.NewBuilder(name).Steps(&fakeStep{name: name + "-start", tr: tr, fn: func(context.Context, step.Context) error {
			time.Sleep(2 * time.Millisecond)
			tr.add(name + "-end")
			return nil
		}}))
	}
	root := build(t, b)

	require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
	var want []string
	for i := 1; i <= 5; i++ {
		want = append(want, fmt.Sprintf("c%d-start", i), fmt.Sprintf("c%d-end", i))
	}
	assert.Equal(t, want, tr.all())
}

func TestOrchestrator_LogsStepFailureOnce(t *testing.T) {
	tr := &trace{}
	log, logs := observed()
	b := unit.NewBuilder("leaf").Steps(fail(tr, "explode", "kaboom"))
	for i := 0; i < 4; i++ {
		b = unit.NewBuilder(fmt.Sprintf("level-%d", i)).Cleanup(leaf(tr, fmt.Sprintf("cleanup-%d", i))).Setup(leaf(tr, "s")).Child(b)
	}
	root := build(t, b)

	err := NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil)
	require.EqualError(t, err, `step "explode": kaboom`)
	assert.Equal(t, 1, errorEntries(logs))
	assert.Equal(t, unit.Errored, root.Status())
}

func TestOrchestrator_ExpectedError(t *testing.T) {
	t.Run("matching error succeeds", func(t *testing.T) {
		tr := &trace{}
		root := build(t, unit.NewBuilder("case").
			Expect(unit.MessageContains("permission denied")).
			Steps(fail(tr, "write", "open /etc/shadow: permission denied")))
		require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
		assert.Equal(t, unit.Successful, root.Status())
	})

	t.Run("missing error is a mismatch", func(t *testing.T) {
		tr := &trace{}
		log, logs := observed()
		root := build(t, unit.NewBuilder("case").
			Expect(unit.MessageContains("permission denied")).
			Steps(rec(tr, "write")))
		err := NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil)
		assert.True(t, failure.IsExpectedMismatch(err))
		assert.Equal(t, unit.Errored, root.Status())
		assert.Equal(t, 1, errorEntries(logs))
	})

	t.Run("different error is a mismatch", func(t *testing.T) {
		tr := &trace{}
		log, logs := observed()
		root := build(t, unit.NewBuilder("case").
			Expect(unit.MessageContains("permission denied")).
			Steps(fail(tr, "write", "disk full")))
		err := NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil)
		assert.True(t, failure.IsExpectedMismatch(err))
		assert.Equal(t, unit.Errored, root.Status())
		assert.Equal(t, 1, errorEntries(logs))
	})
}

func TestOrchestrator_Bail(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("root").Child(
		unit.NewBuilder("c1").Steps(fail(tr, "c1", "boom")),
		leaf(tr, "c2"),
	).Cleanup(leaf(tr, "cleanup")).Setup(leaf(tr, "setup")))

	err := NewOrchestrator(WithBail(true)).Run(context.Background(), root, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"setup", "c1", "cleanup"}, tr.all())
	assert.Equal(t, unit.Skipped, root.Children()[1].Status())
	assert.Contains(t, root.Children()[1].Err().Error(), "bail")
}

func TestOrchestrator_NameFilter(t *testing.T) {
	tr := &trace{}
	sink := &report.Recorder{}
	root := build(t, unit.NewBuilder("auth").Child(
		leaf(tr, "login ok"),
		leaf(tr, "login locked"),
		leaf(tr, "logout"),
	))

	require.NoError(t, NewOrchestrator(WithNameFilter("login*"), WithSink(sink)).Run(context.Background(), root, nil))
	assert.Equal(t, []string{"login ok", "login locked"}, tr.all())
	assert.Equal(t, unit.Skipped, root.Children()[2].Status())
	assert.Len(t, sink.Filter(report.KindSkipped, "auth/logout"), 1)
	assert.Equal(t, unit.Skipped, root.Status())
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("root").Child(leaf(tr, "c1")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, NewOrchestrator().Run(ctx, root, nil))
	assert.Empty(t, tr.all())
	assert.Equal(t, unit.Skipped, root.Status())
	assert.Equal(t, unit.Skipped, root.Children()[0].Status())
}

func TestOrchestrator_SuppressedStepLogging(t *testing.T) {
	tr := &trace{}
	log, logs := observed()
	root := build(t, unit.NewBuilder("case").Steps(
		&fakeStep{name: "loud", tr: tr, say: "loud step"},
		&fakeStep{name: "quiet", tr: tr, say: "quiet step", quiet: true},
	))

	require.NoError(t, NewOrchestrator(WithLogger(log)).Run(context.Background(), root, nil))
	assert.Equal(t, 1, logs.FilterMessage("loud step").Len())
	assert.Equal(t, 0, logs.FilterMessage("quiet step").Len())
}

func TestOrchestrator_RowValuesAndStack(t *testing.T) {
	var stacks [][]string
	tmpl := &fakeStep{name: "inspect", tr: &trace{}, fn: func(_ context.Context, sc step.Context) error {
		stacks = append(stacks, sc.(*env.Context).Stack())
		if sc.Resolve("{{row.value}}") != sc.Resolve("{{value}}") {
			return errors.New("row values differ")
		}
		return nil
	}}
	root := build(t, unit.NewBuilder("suite").Child(unit.NewBuilder("data").Rows(rowsOf("a"), tmpl)))

	require.NoError(t, NewOrchestrator().Run(context.Background(), root, nil))
	assert.Equal(t, [][]string{{"suite", "data", "data[a]"}}, stacks)
}
