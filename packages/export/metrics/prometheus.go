package metrics

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// PrometheusExporter writes metrics in the Prometheus text exposition
// format, for node_exporter's textfile collector or a push gateway.
type PrometheusExporter struct {
	writer   io.Writer
	filePath string
}

type PrometheusOption func(*PrometheusExporter)

func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PrometheusExporter) Export(agg *Aggregate, _ []*UnitMetric) error {
	var b strings.Builder
	writeMetrics(&b, agg)
	if p.filePath != "" {
		if err := os.WriteFile(p.filePath, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if p.writer != nil {
		if _, err := io.WriteString(p.writer, b.String()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func writeMetrics(w io.Writer, a *Aggregate) {
	fmt.Fprintf(w, "# HELP hitplan_units_total Leaf units finished, by status\n")
	fmt.Fprintf(w, "# TYPE hitplan_units_total counter\n")
	for _, c := range []struct {
		status string
		n      int64
	}{
		{"successful", a.Passed}, {"failed", a.Failed}, {"errored", a.Errored}, {"skipped", a.Skipped},
	} {
		fmt.Fprintf(w, "hitplan_units_total{status=%q} %d\n", c.status, c.n)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP hitplan_unit_duration_ms Leaf unit duration in milliseconds\n")
	fmt.Fprintf(w, "# TYPE hitplan_unit_duration_ms gauge\n")
	fmt.Fprintf(w, "hitplan_unit_duration_ms{quantile=\"min\"} %.2f\n", a.MinDurationMs)
	fmt.Fprintf(w, "hitplan_unit_duration_ms{quantile=\"max\"} %.2f\n", a.MaxDurationMs)
	fmt.Fprintf(w, "hitplan_unit_duration_ms{quantile=\"avg\"} %.2f\n", a.AvgDurationMs)
	fmt.Fprintf(w, "hitplan_unit_duration_ms{quantile=\"0.50\"} %.2f\n", a.P50DurationMs)
	fmt.Fprintf(w, "hitplan_unit_duration_ms{quantile=\"0.95\"} %.2f\n", a.P95DurationMs)
	fmt.Fprintf(w, "hitplan_unit_duration_ms{quantile=\"0.99\"} %.2f\n", a.P99DurationMs)

	if len(a.ByPlan) == 0 {
		return
	}
	names := make([]string, 0, len(a.ByPlan))
	for name := range a.ByPlan {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "# HELP hitplan_plan_units_total Leaf units per plan\n")
	fmt.Fprintf(w, "# TYPE hitplan_plan_units_total counter\n")
	for _, name := range names {
		fmt.Fprintf(w, "hitplan_plan_units_total{plan=\"%s\"} %d\n", sanitizeLabel(name), a.ByPlan[name].Total)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "# HELP hitplan_plan_unhealthy_total Failed or errored leaf units per plan\n")
	fmt.Fprintf(w, "# TYPE hitplan_plan_unhealthy_total counter\n")
	for _, name := range names {
		fmt.Fprintf(w, "hitplan_plan_unhealthy_total{plan=\"%s\"} %d\n", sanitizeLabel(name), a.ByPlan[name].Unhealthy)
	}
}

// sanitizeLabel escapes a Prometheus label value.
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
