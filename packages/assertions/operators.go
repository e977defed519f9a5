package assertions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Operator names a comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpGreater     Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLess        Operator = "lt"
	OpLessEq      Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpMatches     Operator = "matches"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "notExists"
	OpLength      Operator = "length"
	OpIncludes    Operator = "includes"
	OpNotIncludes Operator = "notIncludes"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
	OpType        Operator = "type"
	OpSchema      Operator = "schema"
	OpEach        Operator = "each"
)

var aliases = map[string]Operator{
	"==": OpEquals, "eq": OpEquals,
	"!=": OpNotEquals, "ne": OpNotEquals,
	">": OpGreater, ">=": OpGreaterEq,
	"<": OpLess, "<=": OpLessEq,
}

// compareFunc reports whether actual satisfies the operator against
// expected, and otherwise why not.
type compareFunc func(c *comparer, actual, expected any) (bool, string)

var operators map[Operator]compareFunc

// negations maps each negated operator to the operator it inverts.
var negations = map[Operator]Operator{
	OpNotEquals:   OpEquals,
	OpNotContains: OpContains,
	OpNotExists:   OpExists,
	OpNotIncludes: OpIncludes,
	OpNotIn:       OpIn,
}

func init() {
	operators = map[Operator]compareFunc{
		OpEquals:     func(_ *comparer, a, e any) (bool, string) { return equals(a, e) },
		OpGreater:    numeric(">", func(a, e float64) bool { return a > e }),
		OpGreaterEq:  numeric(">=", func(a, e float64) bool { return a >= e }),
		OpLess:       numeric("<", func(a, e float64) bool { return a < e }),
		OpLessEq:     numeric("<=", func(a, e float64) bool { return a <= e }),
		OpContains:   text("contain", strings.Contains),
		OpStartsWith: text("start with", strings.HasPrefix),
		OpEndsWith:   text("end with", strings.HasSuffix),
		OpMatches:    func(_ *comparer, a, e any) (bool, string) { return matches(a, e) },
		OpExists: func(_ *comparer, a, _ any) (bool, string) {
			if a == nil {
				return false, "expected to exist"
			}
			return true, ""
		},
		OpLength:   func(_ *comparer, a, e any) (bool, string) { return length(a, e) },
		OpIncludes: func(_ *comparer, a, e any) (bool, string) { return includes(a, e) },
		OpIn:       func(_ *comparer, a, e any) (bool, string) { return includes(e, a) },
		OpType:     func(_ *comparer, a, e any) (bool, string) { return typeOf(a, e) },
		OpSchema:   (*comparer).schema,
		OpEach:     (*comparer).each,
	}
}

// ParseOperator accepts operator names and their symbolic aliases.
func ParseOperator(s string) (Operator, error) {
	if op, ok := aliases[s]; ok {
		return op, nil
	}
	op := Operator(s)
	if _, ok := operators[op]; ok {
		return op, nil
	}
	if _, ok := negations[op]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

type comparer struct {
	baseDir string
}

func (c *comparer) compare(actual any, op Operator, expected any) (bool, string) {
	if base, ok := negations[op]; ok {
		if passed, _ := c.compare(actual, base, expected); passed {
			return false, fmt.Sprintf("expected %v not to satisfy %s %v", actual, base, expected)
		}
		return true, ""
	}
	fn, ok := operators[op]
	if !ok {
		return false, fmt.Sprintf("unknown operator: %s", op)
	}
	return fn(c, actual, expected)
}

func equals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}
	a, aok := toFloat64(actual)
	e, eok := toFloat64(expected)
	if aok && eok && a == e {
		return true, ""
	}
	if fmt.Sprint(actual) == fmt.Sprint(expected) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func numeric(sym string, ok func(a, e float64) bool) compareFunc {
	return func(_ *comparer, actual, expected any) (bool, string) {
		a, aok := toFloat64(actual)
		e, eok := toFloat64(expected)
		if !aok || !eok {
			return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, sym, expected)
		}
		if ok(a, e) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v %s %v", actual, sym, expected)
	}
}

func text(verb string, ok func(s, sub string) bool) compareFunc {
	return func(_ *comparer, actual, expected any) (bool, string) {
		if ok(fmt.Sprint(actual), fmt.Sprint(expected)) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %q to %s %q", fmt.Sprint(actual), verb, fmt.Sprint(expected))
	}
}

func matches(actual, expected any) (bool, string) {
	pattern := strings.TrimSuffix(strings.TrimPrefix(fmt.Sprint(expected), "/"), "/")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}
	if re.MatchString(fmt.Sprint(actual)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %q to match /%s/", fmt.Sprint(actual), pattern)
}

// lengthOf returns the length of strings, slices, arrays and maps, or -1.
func lengthOf(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return -1
}

func length(actual, expected any) (bool, string) {
	want, ok := toInt(expected)
	if !ok {
		return false, fmt.Sprintf("expected length must be a number, got %v", expected)
	}
	got := lengthOf(actual)
	if got < 0 {
		return false, fmt.Sprintf("cannot get length of %T", actual)
	}
	if got != want {
		return false, fmt.Sprintf("expected length %d, got %d", want, got)
	}
	return true, ""
}

// includes reports whether the list contains an element equal to item.
func includes(list, item any) (bool, string) {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, fmt.Sprintf("expected a list, got %T", list)
	}
	for i := 0; i < rv.Len(); i++ {
		if ok, _ := equals(rv.Index(i).Interface(), item); ok {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected %v to include %v", list, item)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat64(v); ok {
		return "number"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return reflect.TypeOf(v).String()
}

func typeOf(actual, expected any) (bool, string) {
	want, got := fmt.Sprint(expected), typeName(actual)
	if want == got {
		return true, ""
	}
	return false, fmt.Sprintf("expected type %s, got %s", want, got)
}

// schema validates actual against the JSON Schema file named by expected.
// Relative paths resolve against the base directory and may not leave it.
func (c *comparer) schema(actual, expected any) (bool, string) {
	path := fmt.Sprint(expected)
	if !filepath.IsAbs(path) && c.baseDir != "" {
		path = filepath.Join(c.baseDir, path)
	}
	if err := withinBase(path, c.baseDir); err != nil {
		return false, err.Error()
	}
	schemaData, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("failed to read schema file: %v", err)
	}

	var doc []byte
	if s, ok := actual.(string); ok && json.Valid([]byte(s)) {
		doc = []byte(s)
	} else if doc, err = json.Marshal(actual); err != nil {
		return false, fmt.Sprintf("failed to marshal actual value: %v", err)
	}

	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaData), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if res.Valid() {
		return true, ""
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, d := range res.Errors() {
		msgs = append(msgs, d.String())
	}
	return false, "schema validation failed: " + strings.Join(msgs, "; ")
}

// each applies a nested check to every element. expected is either a plain
// value, compared with equals, or a map with "operator" and "value" keys.
func (c *comparer) each(actual, expected any) (bool, string) {
	rv := reflect.ValueOf(actual)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, fmt.Sprintf("expected a list for each, got %T", actual)
	}

	op, want := OpEquals, expected
	if m, ok := expected.(map[string]any); ok {
		if name, hasOp := m["operator"]; hasOp {
			parsed, err := ParseOperator(fmt.Sprint(name))
			if err != nil {
				return false, err.Error()
			}
			op, want = parsed, m["value"]
		}
	}
	for i := 0; i < rv.Len(); i++ {
		if ok, msg := c.compare(rv.Index(i).Interface(), op, want); !ok {
			return false, fmt.Sprintf("item[%d]: %s", i, msg)
		}
	}
	return true, ""
}

func withinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}
	return nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat64(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
