package env

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/hitplan/packages/builtin"
	"github.com/tidwall/gjson"
)

var placeholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc receives resolution warnings such as unknown variables.
type WarnFunc func(format string, args ...any)

type store struct {
	mu   sync.RWMutex
	vars map[string]any
}

// Context is the attribute store seen by steps. Variables live in a store
// that may be shared between contexts (see Branch) or copied (see Fork).
// The unit stack belongs to a single Context and is not synchronized.
type Context struct {
	store *store
	funcs *builtin.Registry
	warn  WarnFunc
	stack []string
}

func NewContext() *Context {
	return &Context{
		store: &store{vars: make(map[string]any)},
		funcs: builtin.NewRegistry(),
	}
}

// SetWarnFunc installs a warning callback. It must be called before the
// context is forked or branched.
func (c *Context) SetWarnFunc(fn WarnFunc) {
	c.warn = fn
}

// Functions exposes the registry used for {{fn()}} placeholders.
func (c *Context) Functions() *builtin.Registry {
	return c.funcs
}

func (c *Context) warnf(format string, args ...any) {
	if c.warn != nil {
		c.warn(format, args...)
	}
}

func (c *Context) Set(name string, value any) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.vars[name] = value
}

func (c *Context) SetAll(vars map[string]any) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	maps.Copy(c.store.vars, vars)
}

// Variables returns a snapshot of all variables.
func (c *Context) Variables() map[string]any {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return maps.Clone(c.store.vars)
}

// Get looks name up exactly first. Failing that, a dotted name such as
// "user.address.city" is split at the longest defined prefix and the rest is
// evaluated as a gjson path against that value.
func (c *Context) Get(name string) (any, bool) {
	c.store.mu.RLock()
	v, ok := c.store.vars[name]
	c.store.mu.RUnlock()
	if ok {
		return v, true
	}

	for i := strings.LastIndex(name, "."); i > 0; i = strings.LastIndex(name[:i], ".") {
		c.store.mu.RLock()
		root, ok := c.store.vars[name[:i]]
		c.store.mu.RUnlock()
		if !ok {
			continue
		}
		return lookupPath(root, name[i+1:])
	}
	return nil, false
}

func lookupPath(root any, path string) (any, bool) {
	var raw []byte
	switch v := root.(type) {
	case string:
		if !gjson.Valid(v) {
			return nil, false
		}
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		raw = b
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Lookup evaluates the body of a single placeholder, without braces.
func (c *Context) Lookup(expr string) (any, bool) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "$"):
		return os.LookupEnv(expr[1:])
	case builtin.IsCall(expr):
		v, err := c.funcs.Call(expr)
		if err != nil {
			c.warnf("function %s: %v", expr, err)
			return nil, false
		}
		return v, true
	default:
		return c.Get(expr)
	}
}

// Resolve substitutes every placeholder in input. Unresolvable placeholders
// are left as written.
func (c *Context) Resolve(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return placeholder.ReplaceAllStringFunc(input, func(m string) string {
		expr := m[2 : len(m)-2]
		v, ok := c.Lookup(expr)
		if !ok {
			c.warnf("unresolved placeholder: %s", strings.TrimSpace(expr))
			return m
		}
		return format(v)
	})
}

// ResolveValue behaves like Resolve except that an input consisting of a
// single placeholder yields the raw value instead of its string form.
func (c *Context) ResolveValue(input string) any {
	trimmed := strings.TrimSpace(input)
	if loc := placeholder.FindStringIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		if v, ok := c.Lookup(trimmed[2 : len(trimmed)-2]); ok {
			return v
		}
	}
	return c.Resolve(input)
}

// HasUnresolved reports whether input still contains a placeholder that
// cannot be resolved.
func (c *Context) HasUnresolved(input string) bool {
	for _, m := range placeholder.FindAllStringSubmatch(input, -1) {
		if _, ok := c.Lookup(m[1]); !ok {
			return true
		}
	}
	return false
}

func format(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// Fork returns a context with its own copy of the variables. Writes to the
// fork are invisible to the receiver.
func (c *Context) Fork() *Context {
	return &Context{
		store: &store{vars: c.Variables()},
		funcs: c.funcs,
		warn:  c.warn,
		stack: append([]string(nil), c.stack...),
	}
}

// Branch returns a context sharing the receiver's variables but owning a
// copy of the unit stack, for use on another goroutine.
func (c *Context) Branch() *Context {
	return &Context{
		store: c.store,
		funcs: c.funcs,
		warn:  c.warn,
		stack: append([]string(nil), c.stack...),
	}
}

// Push records that the named unit started executing.
func (c *Context) Push(name string) {
	c.stack = append(c.stack, name)
}

// Pop removes the innermost unit name.
func (c *Context) Pop() {
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// Stack returns the names of the executing units, outermost first.
func (c *Context) Stack() []string {
	return append([]string(nil), c.stack...)
}
