package unit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorMatcher describes the error a unit is expected to raise.
type ErrorMatcher interface {
	Match(err error) bool
	String() string
}

type containsMatcher string

func (m containsMatcher) Match(err error) bool {
	return err != nil && strings.Contains(err.Error(), string(m))
}

func (m containsMatcher) String() string { return fmt.Sprintf("containing %q", string(m)) }

// MessageContains expects an error whose message contains substr.
func MessageContains(substr string) ErrorMatcher {
	return containsMatcher(substr)
}

type funcMatcher struct {
	desc string
	fn   func(error) bool
}

func (m funcMatcher) Match(err error) bool { return err != nil && m.fn(err) }
func (m funcMatcher) String() string       { return m.desc }

// MatchFunc expects an error accepted by fn.
func MatchFunc(desc string, fn func(error) bool) ErrorMatcher {
	return funcMatcher{desc: desc, fn: fn}
}

// MatchTarget expects an error for which errors.Is(err, target) holds.
func MatchTarget(target error) ErrorMatcher {
	return funcMatcher{
		desc: fmt.Sprintf("wrapping %q", target),
		fn:   func(err error) bool { return errors.Is(err, target) },
	}
}
