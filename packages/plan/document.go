package plan

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the decoded form of a plan file.
type Document struct {
	UnitSpec  `yaml:",inline"`
	Variables map[string]any `yaml:"variables,omitempty"`
	// Database is the default connection string of sql steps and sources.
	Database string `yaml:"database,omitempty"`
}

type UnitSpec struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Parallel    int        `yaml:"parallel,omitempty"`
	DependsOn   []string   `yaml:"dependsOn,omitempty"`
	ExpectError string     `yaml:"expectError,omitempty"`
	Setup       []StepSpec `yaml:"setup,omitempty"`
	Cleanup     []StepSpec `yaml:"cleanup,omitempty"`
	BeforeEach  []StepSpec `yaml:"beforeEach,omitempty"`
	AfterEach   []StepSpec `yaml:"afterEach,omitempty"`
	Data        *DataSpec  `yaml:"data,omitempty"`
	Steps       []StepSpec `yaml:"steps,omitempty"`
	Units       []UnitSpec `yaml:"units,omitempty"`
}

// DataSpec selects exactly one row source.
type DataSpec struct {
	Rows    []map[string]any `yaml:"rows,omitempty"`
	JSON    *JSONSource      `yaml:"json,omitempty"`
	SQL     *SQLSource       `yaml:"sql,omitempty"`
	NameKey string           `yaml:"nameKey,omitempty"`
	Shared  bool             `yaml:"shared,omitempty"`
	Setup   []StepSpec       `yaml:"setup,omitempty"`
	Cleanup []StepSpec       `yaml:"cleanup,omitempty"`
}

type JSONSource struct {
	File string `yaml:"file"`
	Path string `yaml:"path,omitempty"`
}

type SQLSource struct {
	Query    string `yaml:"query"`
	Database string `yaml:"database,omitempty"`
}

type StepSpec struct {
	Name     string         `yaml:"name,omitempty"`
	Quiet    bool           `yaml:"quiet,omitempty"`
	Shell    string         `yaml:"shell,omitempty"`
	Dir      string         `yaml:"dir,omitempty"`
	Capture  string         `yaml:"capture,omitempty"`
	Set      map[string]any `yaml:"set,omitempty"`
	Assert   []CheckSpec    `yaml:"assert,omitempty"`
	SQL      string         `yaml:"sql,omitempty"`
	Database string         `yaml:"database,omitempty"`
	Checks   []CheckSpec    `yaml:"checks,omitempty"`
	WaitFor  *WaitForSpec   `yaml:"waitFor,omitempty"`
}

// kinds lists the step kinds set on s.
func (s *StepSpec) kinds() []string {
	var k []string
	if s.Shell != "" {
		k = append(k, "shell")
	}
	if s.Set != nil {
		k = append(k, "set")
	}
	if s.Assert != nil {
		k = append(k, "assert")
	}
	if s.SQL != "" {
		k = append(k, "sql")
	}
	if s.WaitFor != nil {
		k = append(k, "waitFor")
	}
	return k
}

type WaitForSpec struct {
	URL      string `yaml:"url"`
	Status   int    `yaml:"status,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

// CheckSpec is one assertion. It is written either as a mapping with
// subject, op and value keys, or inline as "subject op [value]".
type CheckSpec struct {
	Subject string `yaml:"subject"`
	Op      string `yaml:"op"`
	Value   any    `yaml:"value,omitempty"`
}

func (c *CheckSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		type plain CheckSpec
		return node.Decode((*plain)(c))
	}
	parsed, err := parseCheck(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*c = parsed
	return nil
}

// parseCheck splits "subject op value". The subject may be a placeholder
// containing spaces; the value is decoded as a YAML scalar so numbers and
// booleans keep their type.
func parseCheck(s string) (CheckSpec, error) {
	s = strings.TrimSpace(s)
	var subject, rest string
	if strings.HasPrefix(s, "{{") {
		end := strings.Index(s, "}}")
		if end < 0 {
			return CheckSpec{}, fmt.Errorf("unterminated placeholder in check %q", s)
		}
		subject, rest = s[:end+2], strings.TrimSpace(s[end+2:])
	} else {
		fields := strings.SplitN(s, " ", 2)
		subject = fields[0]
		if len(fields) == 2 {
			rest = strings.TrimSpace(fields[1])
		}
	}
	if rest == "" {
		return CheckSpec{}, fmt.Errorf("check %q has no operator", s)
	}

	op, value, _ := strings.Cut(rest, " ")
	c := CheckSpec{Subject: subject, Op: op}
	value = strings.TrimSpace(value)
	if value == "" {
		return c, nil
	}
	if strings.Contains(value, "{{") {
		c.Value = value
		return c, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		c.Value = value
		return c, nil
	}
	c.Value = v
	return c, nil
}
