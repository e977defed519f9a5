package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/runner"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func leaf(name string) *unit.Builder {
	return unit.NewBuilder(name).Steps(steps.NewFunc("noop", func(context.Context, step.Context) error { return nil }))
}

func recorded(t *testing.T) *Recorder {
	t.Helper()
	root, err := unit.NewBuilder("plan").Child(
		leaf("a"),
		leaf("b"),
		unit.NewBuilder("c").Steps(steps.NewFunc("fail", func(context.Context, step.Context) error {
			return errors.New("boom")
		})),
	).Build()
	require.NoError(t, err)

	rec := NewRecorder()
	rec.now = fakeClock(time.Millisecond)
	_, err = runner.NewRunner(nil, runner.WithSink(rec)).Run(context.Background(), root, env.NewContext())
	require.NoError(t, err)
	return rec
}

func TestRecorder_Aggregate(t *testing.T) {
	agg := recorded(t).Aggregate()

	assert.Equal(t, int64(3), agg.Total)
	assert.Equal(t, int64(2), agg.Passed)
	assert.Equal(t, int64(1), agg.Errored)
	assert.InDelta(t, 1.0, agg.P50DurationMs, 0.01)
	assert.InDelta(t, 1.0, agg.MaxDurationMs, 0.01)

	require.Contains(t, agg.ByPlan, "plan")
	assert.Equal(t, int64(3), agg.ByPlan["plan"].Total)
	assert.Equal(t, int64(1), agg.ByPlan["plan"].Unhealthy)
}

func TestRecorder_IgnoresGroupsAndHooks(t *testing.T) {
	rec := NewRecorder()
	root, err := unit.NewBuilder("g").Setup(leaf("hook")).Child(leaf("x")).Build()
	require.NoError(t, err)

	rec.Started(unit.PhaseSetup, root.Setup())
	rec.Completed(unit.PhaseSetup, root.Setup())
	rec.Started(unit.PhaseMain, root)
	rec.Completed(unit.PhaseMain, root)
	assert.Equal(t, int64(0), rec.Aggregate().Total)

	rec.Skipped(unit.PhaseMain, root.Children()[0], "filtered out")
	agg := rec.Aggregate()
	assert.Equal(t, int64(1), agg.Skipped)
	assert.Zero(t, agg.P99DurationMs, "skipped units are not timed")
}

func TestJSONExporter(t *testing.T) {
	rec := recorded(t)
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "metrics.json")

	require.NoError(t, rec.Export(NewJSONExporter(WithJSONWriter(&buf), WithJSONFile(file))))

	var out JSONMetricsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, int64(3), out.Summary.Total)
	require.Len(t, out.Units, 3)
	assert.Equal(t, "plan/a", out.Units[0].Path)
	assert.Equal(t, "ERRORED", out.Units[2].Status)

	onDisk, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), onDisk)
}

func TestPrometheusExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, recorded(t).Export(NewPrometheusExporter(WithPrometheusWriter(&buf))))

	out := buf.String()
	assert.Contains(t, out, `hitplan_units_total{status="successful"} 2`)
	assert.Contains(t, out, `hitplan_units_total{status="errored"} 1`)
	assert.Contains(t, out, `hitplan_unit_duration_ms{quantile="0.95"} 1.00`)
	assert.Contains(t, out, `hitplan_plan_unhealthy_total{plan="plan"} 1`)
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, `a\"b\\c\n`, sanitizeLabel("a\"b\\c\n"))
}
