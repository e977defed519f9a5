package output

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Units    []JSONUnit  `json:"units"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// JSONUnit is one node of the unit tree.
type JSONUnit struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Kind     string     `json:"kind"`
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Duration float64    `json:"duration"`
	Hooks    []JSONHook `json:"hooks,omitempty"`
	Units    []JSONUnit `json:"units,omitempty"`
}

type JSONHook struct {
	Phase   string `json:"phase"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// JSONSink writes the unit tree as JSON on Flush.
type JSONSink struct {
	*Collector
	writer io.Writer
}

type JSONOption func(*JSONSink)

func NewJSONSink(opts ...JSONOption) *JSONSink {
	s := &JSONSink{Collector: NewCollector(), writer: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(s *JSONSink) {
		s.writer = w
	}
}

func (s *JSONSink) Flush() error {
	sum := s.Summary()
	out := JSONOutput{
		Summary: JSONSummary{
			Total:   sum.Total,
			Passed:  sum.Passed,
			Failed:  sum.Failed,
			Errored: sum.Errored,
			Skipped: sum.Skipped,
		},
		Duration: float64(s.Elapsed().Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}
	for _, r := range s.Roots() {
		out.Units = append(out.Units, toJSON(r))
	}

	encoder := json.NewEncoder(s.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func toJSON(r *Result) JSONUnit {
	u := JSONUnit{
		Name:     r.Name,
		Path:     r.Path,
		Kind:     r.Unit.Kind().String(),
		Status:   r.Status.String(),
		Message:  r.Message,
		Duration: float64(r.Duration.Milliseconds()),
	}
	for _, h := range r.Hooks {
		u.Hooks = append(u.Hooks, JSONHook{
			Phase:   h.Phase.String(),
			Name:    h.Name,
			Status:  h.Status.String(),
			Message: h.Message,
		})
	}
	for _, c := range r.Children {
		u.Units = append(u.Units, toJSON(c))
	}
	return u
}
