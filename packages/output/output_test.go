package output

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/report"
	"github.com/abdul-hamid-achik/hitplan/packages/core/runner"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(context.Context, step.Context) error { return nil }

// mixedTree has one leaf of every terminal status.
func mixedTree(t *testing.T) *unit.Unit {
	t.Helper()
	bad := unit.NewBuilder("bad").Steps(steps.NewCheck("check", func(context.Context, step.Context) (bool, string) {
		return false, "nope"
	}))
	root := unit.NewBuilder("suite").Child(
		unit.NewBuilder("ok").Steps(steps.NewFunc("pass", pass)),
		bad,
		unit.NewBuilder("boom").Steps(steps.NewFunc("explode", func(context.Context, step.Context) error {
			return errors.New("kaboom")
		})),
		unit.NewBuilder("after").DependsOn(bad).Steps(steps.NewFunc("pass", pass)),
	)
	u, err := root.Build()
	require.NoError(t, err)
	return u
}

func runWith(t *testing.T, root *unit.Unit, sink report.Sink) {
	t.Helper()
	_, err := runner.NewRunner(nil, runner.WithSink(sink)).Run(context.Background(), root, env.NewContext())
	require.NoError(t, err)
	if f, ok := sink.(report.Flushable); ok {
		require.NoError(t, f.Flush())
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	runWith(t, mixedTree(t), c)

	roots := c.Roots()
	require.Len(t, roots, 1)
	var names []string
	var statuses []unit.Status
	for _, r := range roots[0].Children {
		names = append(names, r.Name)
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []string{"ok", "bad", "boom", "after"}, names)
	assert.Equal(t, []unit.Status{unit.Successful, unit.Failed, unit.Errored, unit.Skipped}, statuses)
	assert.Contains(t, roots[0].Children[1].Message, "nope")
	assert.Contains(t, roots[0].Children[2].Message, "kaboom")

	assert.Equal(t, Summary{Total: 4, Passed: 1, Failed: 1, Errored: 1, Skipped: 1}, c.Summary())
}

func TestCollector_HookFailure(t *testing.T) {
	root, err := unit.NewBuilder("suite").
		Setup(unit.NewBuilder("prepare").Steps(steps.NewFunc("fail", func(context.Context, step.Context) error {
			return errors.New("no database")
		}))).
		Child(unit.NewBuilder("a").Steps(steps.NewFunc("pass", pass))).
		Build()
	require.NoError(t, err)

	c := NewCollector()
	runWith(t, root, c)

	r := c.Roots()[0]
	require.Len(t, r.Hooks, 1)
	assert.Equal(t, unit.PhaseSetup, r.Hooks[0].Phase)
	assert.Equal(t, "prepare", r.Hooks[0].Name)
	assert.Equal(t, unit.Errored, r.Hooks[0].Status)
	assert.Contains(t, r.Hooks[0].Message, "no database")
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(WithWriter(&buf), WithNoColor(true))
	s.Header("1.0.0", "suite.plan.yaml")
	runWith(t, mixedTree(t), s)

	out := buf.String()
	assert.Contains(t, out, "hitplan 1.0.0")
	assert.Contains(t, out, "Running: suite.plan.yaml")
	assert.Contains(t, out, "✓ suite/ok")
	assert.Contains(t, out, "✗ suite/bad")
	assert.Contains(t, out, "→ validation failed")
	assert.Contains(t, out, "x suite/boom")
	assert.Contains(t, out, "- suite/after")
	assert.Contains(t, out, "Tests: 1 passed, 1 failed, 1 errored, 1 skipped, 4 total")
	assert.NotContains(t, out, "suite (", "groups are printed only in verbose mode")
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	runWith(t, mixedTree(t), NewJSONSink(JSONWithWriter(&buf)))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, JSONSummary{Total: 4, Passed: 1, Failed: 1, Errored: 1, Skipped: 1}, out.Summary)
	require.Len(t, out.Units, 1)
	suite := out.Units[0]
	assert.Equal(t, "group", suite.Kind)
	assert.Equal(t, "ERRORED", suite.Status)
	require.Len(t, suite.Units, 4)
	assert.Equal(t, "suite/boom", suite.Units[2].Path)
	assert.Equal(t, "ERRORED", suite.Units[2].Status)
}

func TestJUnitSink(t *testing.T) {
	var buf bytes.Buffer
	runWith(t, mixedTree(t), NewJUnitSink(JUnitWithWriter(&buf)))

	assert.True(t, strings.HasPrefix(buf.String(), "<?xml"))
	var out JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 4, out.Tests)
	assert.Equal(t, 1, out.Failures)
	assert.Equal(t, 1, out.Errors)
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, out.TestSuites, 1)
	cases := out.TestSuites[0].TestCases
	require.Len(t, cases, 4)
	assert.Equal(t, "suite", cases[0].ClassName)
	require.NotNil(t, cases[1].Failure)
	assert.Contains(t, cases[1].Failure.Content, "nope")
	require.NotNil(t, cases[2].Error)
	require.NotNil(t, cases[3].Skipped)
}

func TestTAPSink(t *testing.T) {
	var buf bytes.Buffer
	runWith(t, mixedTree(t), NewTAPSink(TAPWithWriter(&buf)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "TAP version 13", lines[0])
	assert.Equal(t, "1..4", lines[1])
	assert.Equal(t, "ok 1 - suite/ok", lines[2])
	assert.Equal(t, "not ok 2 - suite/bad", lines[3])
	assert.Contains(t, buf.String(), "severity: error")
	assert.Contains(t, buf.String(), "ok 4 - suite/after # SKIP")
}

func TestNewSink(t *testing.T) {
	var buf bytes.Buffer
	for _, f := range Formats {
		s, err := NewSink(f, &buf)
		require.NoError(t, err, f)
		assert.NotNil(t, s)
	}
	_, err := NewSink("html", &buf)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: \"b\"\nc"`, escapeYAML("a: \"b\"\nc"))
}
