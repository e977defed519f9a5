// Package metrics aggregates unit durations of plan runs and exports them.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
)

const (
	// histogram range in microseconds: 1us to 1h
	minValue = 1
	maxValue = int64(time.Hour / time.Microsecond)
	sigFigs  = 3
)

// Aggregate summarizes the leaf units recorded by a Recorder.
type Aggregate struct {
	Total         int64                     `json:"total"`
	Passed        int64                     `json:"passed"`
	Failed        int64                     `json:"failed"`
	Errored       int64                     `json:"errored"`
	Skipped       int64                     `json:"skipped"`
	MinDurationMs float64                   `json:"min_duration_ms"`
	MaxDurationMs float64                   `json:"max_duration_ms"`
	AvgDurationMs float64                   `json:"avg_duration_ms"`
	P50DurationMs float64                   `json:"p50_duration_ms"`
	P95DurationMs float64                   `json:"p95_duration_ms"`
	P99DurationMs float64                   `json:"p99_duration_ms"`
	ByPlan        map[string]*PlanAggregate `json:"by_plan"`
}

// PlanAggregate holds the counters of one root unit.
type PlanAggregate struct {
	Name          string  `json:"name"`
	Total         int64   `json:"total"`
	Unhealthy     int64   `json:"unhealthy"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`

	sumMs float64
	timed int64
}

// UnitMetric is the record of one finished leaf unit.
type UnitMetric struct {
	Path       string    `json:"path"`
	Plan       string    `json:"plan"`
	Status     string    `json:"status"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Exporter writes an aggregate to its destination.
type Exporter interface {
	Export(agg *Aggregate, units []*UnitMetric) error
}

// Recorder is a report sink timing leaf units. Skipped units are counted
// but not timed.
type Recorder struct {
	mu        sync.Mutex
	now       func() time.Time
	started   map[*unit.Unit]time.Time
	histogram *hdrhistogram.Histogram
	units     []*UnitMetric
	agg       *Aggregate
}

func NewRecorder() *Recorder {
	return &Recorder{
		now:       time.Now,
		started:   make(map[*unit.Unit]time.Time),
		histogram: hdrhistogram.New(minValue, maxValue, sigFigs),
		agg:       &Aggregate{ByPlan: make(map[string]*PlanAggregate)},
	}
}

func (r *Recorder) Started(phase unit.Phase, u *unit.Unit) {
	if phase != unit.PhaseMain {
		return
	}
	r.mu.Lock()
	r.started[u] = r.now()
	r.mu.Unlock()
}

func (r *Recorder) Completed(phase unit.Phase, u *unit.Unit) {
	r.record(phase, u, unit.Successful)
}

func (r *Recorder) Failed(phase unit.Phase, u *unit.Unit, _ string) {
	r.record(phase, u, unit.Failed)
}

func (r *Recorder) Errored(phase unit.Phase, u *unit.Unit, _ string) {
	r.record(phase, u, unit.Errored)
}

func (r *Recorder) Skipped(phase unit.Phase, u *unit.Unit, _ string) {
	r.record(phase, u, unit.Skipped)
}

func (r *Recorder) record(phase unit.Phase, u *unit.Unit, status unit.Status) {
	if phase != unit.PhaseMain || len(u.RunChildren()) > 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var d time.Duration
	start, timed := r.started[u]
	if timed {
		d = r.now().Sub(start)
		delete(r.started, u)
	}
	plan := rootOf(u).Label()
	r.units = append(r.units, &UnitMetric{
		Path:       u.Path(),
		Plan:       plan,
		Status:     status.String(),
		DurationMs: ms(d),
		Timestamp:  r.now(),
	})

	a := r.agg
	a.Total++
	switch status {
	case unit.Successful:
		a.Passed++
	case unit.Failed:
		a.Failed++
	case unit.Errored:
		a.Errored++
	default:
		a.Skipped++
	}

	pa, ok := a.ByPlan[plan]
	if !ok {
		pa = &PlanAggregate{Name: plan}
		a.ByPlan[plan] = pa
	}
	pa.Total++
	if status == unit.Failed || status == unit.Errored {
		pa.Unhealthy++
	}
	if !timed {
		return
	}

	us := d.Microseconds()
	if us < minValue {
		us = minValue
	}
	if us > maxValue {
		us = maxValue
	}
	_ = r.histogram.RecordValue(us)

	pa.sumMs += ms(d)
	pa.timed++
	if pa.MaxDurationMs < ms(d) {
		pa.MaxDurationMs = ms(d)
	}
	pa.AvgDurationMs = pa.sumMs / float64(pa.timed)
}

// Aggregate returns a snapshot of the recorded metrics.
func (r *Recorder) Aggregate() *Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := *r.agg
	out.ByPlan = make(map[string]*PlanAggregate, len(r.agg.ByPlan))
	for k, v := range r.agg.ByPlan {
		cp := *v
		out.ByPlan[k] = &cp
	}
	if r.histogram.TotalCount() > 0 {
		out.MinDurationMs = usToMs(r.histogram.Min())
		out.MaxDurationMs = usToMs(r.histogram.Max())
		out.AvgDurationMs = r.histogram.Mean() / 1000
		out.P50DurationMs = usToMs(r.histogram.ValueAtQuantile(50))
		out.P95DurationMs = usToMs(r.histogram.ValueAtQuantile(95))
		out.P99DurationMs = usToMs(r.histogram.ValueAtQuantile(99))
	}
	return &out
}

// Units returns the per-unit records in completion order.
func (r *Recorder) Units() []*UnitMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*UnitMetric(nil), r.units...)
}

// Export hands the current snapshot to every exporter and returns the first
// error.
func (r *Recorder) Export(exporters ...Exporter) error {
	agg, units := r.Aggregate(), r.Units()
	var first error
	for _, e := range exporters {
		if err := e.Export(agg, units); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func rootOf(u *unit.Unit) *unit.Unit {
	for u.Parent() != nil {
		u = u.Parent()
	}
	return u
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func usToMs(us int64) float64 {
	return float64(us) / 1000
}
