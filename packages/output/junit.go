package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
)

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite holds the leaves of one root unit.
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	SystemErr string          `xml:"system-err,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitSink writes JUnit XML on Flush: one suite per root unit, one case
// per leaf.
type JUnitSink struct {
	*Collector
	writer io.Writer
}

type JUnitOption func(*JUnitSink)

func NewJUnitSink(opts ...JUnitOption) *JUnitSink {
	s := &JUnitSink{Collector: NewCollector(), writer: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(s *JUnitSink) {
		s.writer = w
	}
}

func (s *JUnitSink) Flush() error {
	suites := JUnitTestSuites{
		Name:      "hitplan",
		Time:      s.Elapsed().Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for _, root := range s.Roots() {
		suite := buildSuite(root)
		suites.Tests += suite.Tests
		suites.Failures += suite.Failures
		suites.Errors += suite.Errors
		suites.Skipped += suite.Skipped
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	fmt.Fprintf(s.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(s.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(s.writer)
	return err
}

func buildSuite(root *Result) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name:      root.Name,
		Time:      root.Duration.Seconds(),
		Timestamp: root.Started.Format(time.RFC3339),
	}
	var hookErrs []string
	stack := []*Result{root}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, h := range r.Hooks {
			hookErrs = append(hookErrs, fmt.Sprintf("%s %s %q: %s", r.Path, strings.ToLower(h.Phase.String()), h.Name, h.Message))
		}
		if !r.Leaf() {
			for i := len(r.Children) - 1; i >= 0; i-- {
				stack = append(stack, r.Children[i])
			}
			continue
		}
		suite.TestCases = append(suite.TestCases, testCase(r, &suite))
	}
	suite.Tests = len(suite.TestCases)
	suite.SystemErr = strings.Join(hookErrs, "\n")
	return suite
}

func testCase(r *Result, suite *JUnitTestSuite) JUnitTestCase {
	class := r.Path
	if p := r.Unit.Parent(); p != nil {
		class = p.Path()
	}
	tc := JUnitTestCase{Name: r.Name, ClassName: class, Time: r.Duration.Seconds()}
	switch r.Status {
	case unit.Failed:
		suite.Failures++
		tc.Failure = &JUnitFailure{Message: "Validation failed", Type: "ValidationFailed", Content: r.Message}
	case unit.Errored:
		suite.Errors++
		tc.Error = &JUnitError{Message: truncate(r.Message, 200), Type: "Error", Content: r.Message}
	case unit.Successful:
	default:
		suite.Skipped++
		tc.Skipped = &JUnitSkipped{Message: r.Message}
	}
	return tc
}
