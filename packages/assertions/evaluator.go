package assertions

import "fmt"

// Assertion is a single check of a subject value.
type Assertion struct {
	Subject  string
	Operator Operator
	Expected any
}

func (a Assertion) String() string {
	if a.Expected == nil {
		return fmt.Sprintf("%s %s", a.Subject, a.Operator)
	}
	return fmt.Sprintf("%s %s %v", a.Subject, a.Operator, a.Expected)
}

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

// Lookup resolves the subject of an assertion. A missing subject yields
// (nil, false); operators other than exists then see nil.
type Lookup func(subject string) (any, bool)

type Evaluator struct {
	lookup Lookup
	cmp    comparer
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir sets the directory schema files resolve against.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) { e.cmp.baseDir = dir }
}

func NewEvaluator(lookup Lookup, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{lookup: lookup}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(a Assertion) *Result {
	res := &Result{Subject: a.Subject, Operator: string(a.Operator), Expected: a.Expected}
	var actual any
	if e.lookup != nil {
		actual, _ = e.lookup(a.Subject)
	}
	res.Actual = actual
	res.Passed, res.Message = e.cmp.compare(actual, a.Operator, a.Expected)
	if a.Operator == OpLength {
		res.Actual = lengthOf(actual)
	}
	return res
}

// EvaluateAll evaluates every assertion in order.
func (e *Evaluator) EvaluateAll(list []Assertion) []*Result {
	out := make([]*Result, len(list))
	for i, a := range list {
		out[i] = e.Evaluate(a)
	}
	return out
}

// Compare checks a single value without a lookup.
func Compare(actual any, op Operator, expected any) (bool, string) {
	var c comparer
	return c.compare(actual, op, expected)
}
