package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/fatih/color"
)

// truncate shortens long messages for single-line display.
func truncate(s string, maxLen int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// ConsoleSink prints each leaf as it finishes and a summary on Flush.
type ConsoleSink struct {
	*Collector
	writer  io.Writer
	verbose bool
	noColor bool

	green, red, yellow, cyan, bold func(a ...any) string
}

type ConsoleOption func(*ConsoleSink)

func NewConsoleSink(opts ...ConsoleOption) *ConsoleSink {
	s := &ConsoleSink{Collector: NewCollector(), writer: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	if s.noColor {
		color.NoColor = true
	}
	s.green = color.New(color.FgGreen).SprintFunc()
	s.red = color.New(color.FgRed).SprintFunc()
	s.yellow = color.New(color.FgYellow).SprintFunc()
	s.cyan = color.New(color.FgCyan).SprintFunc()
	s.bold = color.New(color.Bold).SprintFunc()
	s.onDone = s.printResult
	s.onHook = s.printHook
	return s
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(s *ConsoleSink) {
		s.writer = w
	}
}

// WithVerbose also prints groups as they finish and the reasons of skips.
func WithVerbose(v bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.noColor = nc
	}
}

// Header prints the banner of a run.
func (s *ConsoleSink) Header(version, target string) {
	fmt.Fprintf(s.writer, "%s %s\n", s.bold("hitplan"), version)
	if target != "" {
		fmt.Fprintf(s.writer, "\n%s\n\n", s.bold("Running: "+target))
	}
}

func (s *ConsoleSink) printResult(r *Result) {
	if !r.Leaf() && !s.verbose {
		return
	}
	name := r.Path
	switch r.Status {
	case unit.Successful:
		fmt.Fprintf(s.writer, "  %s %s %s\n", s.green("✓"), name, s.cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
	case unit.Failed:
		fmt.Fprintf(s.writer, "  %s %s\n", s.red("✗"), name)
		if r.Message != "" {
			fmt.Fprintf(s.writer, "    %s %s\n", s.red("→"), truncate(r.Message, 200))
		}
	case unit.Errored:
		fmt.Fprintf(s.writer, "  %s %s %s\n", s.red("x"), name, s.red(fmt.Sprintf("(%s)", truncate(r.Message, 200))))
	case unit.Skipped:
		fmt.Fprintf(s.writer, "  %s %s", s.yellow("-"), name)
		if r.Message != "" && s.verbose {
			fmt.Fprintf(s.writer, " (%s)", r.Message)
		}
		fmt.Fprintf(s.writer, "\n")
	}
}

func (s *ConsoleSink) printHook(owner *Result, h HookResult) {
	fmt.Fprintf(s.writer, "  %s %s %s\n", s.red("!"), owner.Path,
		s.red(fmt.Sprintf("%s %q %s: %s", strings.ToLower(h.Phase.String()), h.Name, strings.ToLower(h.Status.String()), truncate(h.Message, 200))))
}

// Error prints an error that prevented a plan from running.
func (s *ConsoleSink) Error(err error) {
	fmt.Fprintf(s.writer, "%s %v\n", s.red("Error:"), err)
}

// Flush prints the summary of everything recorded so far.
func (s *ConsoleSink) Flush() error {
	sum := s.Summary()
	fmt.Fprintf(s.writer, "\nTests: ")
	if sum.Passed > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.green(fmt.Sprintf("%d passed", sum.Passed)))
	}
	if sum.Failed > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.red(fmt.Sprintf("%d failed", sum.Failed)))
	}
	if sum.Errored > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.red(fmt.Sprintf("%d errored", sum.Errored)))
	}
	if sum.Skipped > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.yellow(fmt.Sprintf("%d skipped", sum.Skipped)))
	}
	fmt.Fprintf(s.writer, "%d total\n", sum.Total)
	fmt.Fprintf(s.writer, "Time:  %dms\n\n", s.Elapsed().Milliseconds())
	return nil
}
