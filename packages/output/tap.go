package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
)

// TAPSink writes TAP version 13 on Flush, one test point per leaf.
type TAPSink struct {
	*Collector
	writer io.Writer
}

type TAPOption func(*TAPSink)

func NewTAPSink(opts ...TAPOption) *TAPSink {
	s := &TAPSink{Collector: NewCollector(), writer: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(s *TAPSink) {
		s.writer = w
	}
}

func (s *TAPSink) Flush() error {
	leaves := s.Leaves()
	fmt.Fprintf(s.writer, "TAP version 13\n")
	fmt.Fprintf(s.writer, "1..%d\n", len(leaves))

	for i, r := range leaves {
		n := i + 1
		switch r.Status {
		case unit.Successful:
			fmt.Fprintf(s.writer, "ok %d - %s\n", n, r.Path)
		case unit.Failed, unit.Errored:
			severity := "fail"
			if r.Status == unit.Errored {
				severity = "error"
			}
			fmt.Fprintf(s.writer, "not ok %d - %s\n", n, r.Path)
			fmt.Fprintf(s.writer, "  ---\n")
			fmt.Fprintf(s.writer, "  message: %s\n", escapeYAML(r.Message))
			fmt.Fprintf(s.writer, "  severity: %s\n", severity)
			fmt.Fprintf(s.writer, "  ...\n")
		default:
			reason := r.Message
			if reason == "" {
				reason = "SKIP"
			}
			fmt.Fprintf(s.writer, "ok %d - %s # SKIP %s\n", n, r.Path, oneLine(reason))
		}
	}
	_, err := fmt.Fprintln(s.writer)
	return err
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		return "\"" + s + "\""
	}
	return s
}
