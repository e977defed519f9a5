package unit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopStep struct{ name string }

func (s *noopStep) Name() string          { return s.name }
func (s *noopStep) Clone() step.Step      { c := *s; return &c }
func (s *noopStep) LoggingDisabled() bool { return false }
func (s *noopStep) Execute(context.Context, step.Context, *zap.Logger) (bool, error) {
	return true, nil
}

func rows(names ...string) DataProvider {
	return ProviderFunc(func(context.Context) ([]Row, error) {
		out := make([]Row, len(names))
		for i, n := range names {
			out[i] = Row{Name: n, Values: map[string]any{"value": n}}
		}
		return out, nil
	})
}

func TestRollup(t *testing.T) {
	tests := []struct {
		in   []Status
		want Status
	}{
		{nil, Successful},
		{[]Status{Successful, Successful}, Successful},
		{[]Status{Successful, Skipped}, Skipped},
		{[]Status{Skipped, Failed, Successful}, Failed},
		{[]Status{Failed, Errored, Skipped}, Errored},
		{[]Status{Errored, Failed}, Errored},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, Rollup(tt.in...))
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, Successful, StatusOf(nil))
	assert.Equal(t, Failed, StatusOf(failure.MarkLogged(&failure.ValidationFailed{Step: "s"})))
	assert.Equal(t, Skipped, StatusOf(&failure.DependencySkipped{Unit: "b", Dependency: "a"}))
	assert.Equal(t, Errored, StatusOf(&failure.StepError{Step: "s", Err: errors.New("boom")}))
	assert.Equal(t, Errored, StatusOf(&failure.ExpectedMismatch{Unit: "u", Expected: "x"}))
	assert.Equal(t, Errored, StatusOf(&failure.ExpectedMismatch{Unit: "u", Expected: "x", Actual: &failure.ValidationFailed{Step: "s"}}))
	assert.Equal(t, Errored, StatusOf(failure.Configf("u", "no rows")))
	assert.Equal(t, Errored, StatusOf(&failure.StepError{Step: "s",
		Err: errors.Join(errors.New("db down"), &failure.Skip{Unit: "u", Reason: "bail"})}))
}

func TestStatusPredicates(t *testing.T) {
	assert.False(t, Pending.IsTerminal())
	assert.False(t, InProgress.IsTerminal())
	for _, s := range []Status{Successful, Failed, Errored, Skipped} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	assert.True(t, Successful.IsHealthy())
	assert.False(t, Skipped.IsHealthy())
	assert.Equal(t, "IN_PROGRESS", InProgress.String())
	assert.Equal(t, "DATA_CLEANUP", PhaseDataCleanup.String())
}

func TestBuild_Shapes(t *testing.T) {
	a := NewBuilder("a").Steps(&noopStep{"one"})
	b := NewBuilder("b").DependsOn(a).Rows(rows("x", "y"), &noopStep{"tmpl"})
	root := NewBuilder("root").
		Setup(NewBuilder("setup").Steps(&noopStep{"s"})).
		BeforeChild(NewBuilder("before")).
		Parallelism(2).
		Child(a, b)

	u, err := root.Build()
	require.NoError(t, err)

	assert.Equal(t, Group, u.Kind())
	require.Len(t, u.Children(), 2)
	ua, ub := u.Children()[0], u.Children()[1]
	assert.Equal(t, Leaf, ua.Kind())
	assert.Equal(t, DataDriven, ub.Kind())
	assert.Equal(t, []*Unit{ua}, ub.Dependencies())
	assert.Equal(t, []*Unit{ub}, ua.Dependents())
	assert.Equal(t, "root/setup", u.Setup().Path())
	assert.Equal(t, 2, u.Parallelism())
	assert.Equal(t, Pending, u.Status())
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	shared := NewBuilder("shared")
	outside := NewBuilder("outside")
	x := NewBuilder("x")
	y := NewBuilder("y").DependsOn(x)
	x.DependsOn(y)
	self := NewBuilder("self")
	self.DependsOn(self)

	tests := []struct {
		name string
		b    *Builder
		msg  string
	}{
		{"children and steps", NewBuilder("u").Child(NewBuilder("c")).Steps(&noopStep{"s"}), "both children and steps"},
		{"provider and steps", NewBuilder("u").Rows(rows("r")).Steps(&noopStep{"s"}), "direct steps"},
		{"provider and children", NewBuilder("u").Rows(rows("r")).Child(NewBuilder("c")), "cannot declare children"},
		{"cycle", NewBuilder("u").Child(x, y), "dependency cycle"},
		{"self dependency", NewBuilder("u").Child(self), "depends on itself"},
		{"non sibling", NewBuilder("u").Child(NewBuilder("g").Child(outside), NewBuilder("h").DependsOn(outside)), "not a sibling"},
		{"reused builder", NewBuilder("u").Child(shared, NewBuilder("g").Child(shared)), "more than once"},
		{"root dependency", NewBuilder("u").DependsOn(NewBuilder("v")), "root unit"},
		{"hook dependency", NewBuilder("u").Setup(NewBuilder("s").DependsOn(NewBuilder("v"))), "hook unit"},
		{"data hook without provider", NewBuilder("u").DataSetup(NewBuilder("ds")), "data hooks"},
		{"group expecting error", NewBuilder("u").Expect(MessageContains("boom")).Child(NewBuilder("c")), "group unit cannot declare an expected error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			require.Error(t, err)
			assert.True(t, failure.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestMaterializeRows(t *testing.T) {
	tmpl := &noopStep{"tmpl"}
	u, err := NewBuilder("data").Rows(rows("x", ""), tmpl).Build()
	require.NoError(t, err)

	children := u.MaterializeRows([]Row{{Name: "x"}, {}})
	require.Len(t, children, 2)
	assert.Equal(t, "data[x]", children[0].Label())
	assert.Equal(t, "data[row 2]", children[1].Label())
	assert.Equal(t, children, u.RunChildren())
	for _, c := range children {
		require.Len(t, c.Steps(), 1)
		assert.NotSame(t, tmpl, c.Steps()[0])
		assert.Same(t, u, c.Parent())
	}
}

func TestStartFinish(t *testing.T) {
	u, err := NewBuilder("u").Build()
	require.NoError(t, err)

	assert.True(t, u.Start())
	assert.False(t, u.Start())
	assert.True(t, u.Finish(Failed, errors.New("first")))
	assert.False(t, u.Finish(Successful, nil))
	assert.Equal(t, Failed, u.Status())
	assert.EqualError(t, u.Err(), "first")
}

func TestWalk(t *testing.T) {
	root, err := NewBuilder("r").Child(
		NewBuilder("a").Child(NewBuilder("a1"), NewBuilder("a2")),
		NewBuilder("b"),
	).Build()
	require.NoError(t, err)

	var visited []string
	root.Walk(func(n *Unit, depth int) bool {
		visited = append(visited, fmt.Sprintf("%d:%s", depth, n.Label()))
		return n.Label() != "a"
	})
	assert.Equal(t, []string{"0:r", "1:a", "1:b"}, visited)
}

func TestMatchers(t *testing.T) {
	sentinel := errors.New("sentinel")
	assert.True(t, MessageContains("timeout").Match(errors.New("dial: timeout")))
	assert.False(t, MessageContains("timeout").Match(nil))
	assert.True(t, MatchTarget(sentinel).Match(fmt.Errorf("wrapped: %w", sentinel)))
	assert.False(t, MatchFunc("never", func(error) bool { return false }).Match(sentinel))
}
