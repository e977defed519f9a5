package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/report"
)

// Formats lists the names accepted by NewSink.
var Formats = []string{"console", "json", "junit", "tap"}

// NewSink returns the sink for a format name. Console options apply only
// to the console format.
func NewSink(format string, w io.Writer, opts ...ConsoleOption) (report.Sink, error) {
	switch strings.ToLower(format) {
	case "", "console":
		return NewConsoleSink(append([]ConsoleOption{WithWriter(w)}, opts...)...), nil
	case "json":
		return NewJSONSink(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitSink(JUnitWithWriter(w)), nil
	case "tap":
		return NewTAPSink(TAPWithWriter(w)), nil
	}
	return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
}
