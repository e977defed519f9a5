package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// JSONExporter writes metrics as a JSON document.
type JSONExporter struct {
	writer    io.Writer
	filePath  string
	pretty    bool
	startTime time.Time
}

type JSONOption func(*JSONExporter)

func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{startTime: time.Now(), pretty: true}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type JSONMetricsOutput struct {
	Metadata JSONMetadata  `json:"metadata"`
	Summary  *Aggregate    `json:"summary"`
	Units    []*UnitMetric `json:"units"`
}

type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
	Version     string `json:"version"`
}

func (j *JSONExporter) Export(agg *Aggregate, units []*UnitMetric) error {
	end := time.Now()
	out := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: end.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			Duration:    end.Sub(j.startTime).String(),
			Version:     "1.0",
		},
		Summary: agg,
		Units:   units,
	}

	var (
		data []byte
		err  error
	)
	if j.pretty {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
