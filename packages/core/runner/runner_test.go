package runner

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run(t *testing.T) {
	tr := &trace{}
	log, logs := observed()
	var started atomic.Int32
	listener := step.ListenerFuncs{OnStarted: func(step.Step) { started.Add(1) }}

	root := build(t, unit.NewBuilder("plan").Child(
		unit.NewBuilder("data").Rows(rowsOf("a", "b"), rec(tr, "row")),
		unit.NewBuilder("check").Steps(&check{name: "verdict", ok: false}),
		unit.NewBuilder("group").Child(leaf(tr, "g1")),
	))

	r := NewRunner(&Config{}, WithLogger(log), WithListeners(listener))
	res, err := r.Run(context.Background(), root, env.NewContext())
	require.NoError(t, err)

	_, perr := uuid.Parse(res.ID)
	assert.NoError(t, perr)
	assert.Same(t, root, res.Root)
	assert.Equal(t, unit.Failed, res.Status)
	assert.Equal(t, 3, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, 4, res.Total())
	assert.False(t, res.OK())
	assert.Error(t, res.Err)
	assert.EqualValues(t, 4, started.Load())

	finished := logs.FilterMessage("run finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, res.ID, finished[0].ContextMap()["run_id"])

	_, err = r.Run(context.Background(), root, nil)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestRunner_SkippedLeavesCounted(t *testing.T) {
	tr := &trace{}
	root := build(t, unit.NewBuilder("plan").
		Setup(unit.NewBuilder("setup").Steps(fail(tr, "setup", "down"))).
		Child(leaf(tr, "a"), leaf(tr, "b")))

	res, err := NewRunner(nil).Run(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, unit.Errored, res.Status)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Passed)
}

func TestRunner_RunAll(t *testing.T) {
	tr := &trace{}
	roots := []*unit.Unit{
		build(t, unit.NewBuilder("first").Child(leaf(tr, "f1"))),
		build(t, unit.NewBuilder("second").Child(unit.NewBuilder("s1").Steps(fail(tr, "s1", "boom")))),
		build(t, unit.NewBuilder("third").Child(leaf(tr, "t1"))),
	}
	sc := env.NewContext()
	sc.Set("base", "http://localhost")

	results, err := NewRunner(&Config{Parallelism: 2}).RunAll(context.Background(), roots, sc)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Root.Label())
	assert.Equal(t, unit.Successful, results[0].Status)
	assert.Equal(t, unit.Errored, results[1].Status)
	assert.Equal(t, unit.Successful, results[2].Status)
	assert.NotEqual(t, results[0].ID, results[2].ID)

	_, err = NewRunner(nil).RunAll(context.Background(), roots[:1], nil)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name, pattern string
		want          bool
	}{
		{"login ok", "", true},
		{"login ok", "login ok", true},
		{"login ok", "login*", true},
		{"login ok", "*ok", true},
		{"user login ok", "*login*", true},
		{"logout", "login*", false},
		{"logout", "login", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.name, tt.pattern), "%s ~ %s", tt.name, tt.pattern)
	}
}
