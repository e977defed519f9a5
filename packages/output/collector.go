package output

import (
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
)

// Result is the recorded outcome of one unit.
type Result struct {
	Unit     *unit.Unit
	Name     string
	Path     string
	Status   unit.Status
	Message  string
	Started  time.Time
	Duration time.Duration
	// Hooks lists the hooks of this unit that did not succeed.
	Hooks    []HookResult
	Children []*Result

	order int
}

// Leaf reports whether the unit ran steps rather than children.
func (r *Result) Leaf() bool {
	return len(r.Unit.RunChildren()) == 0
}

type HookResult struct {
	Phase   unit.Phase
	Name    string
	Status  unit.Status
	Message string
}

// Summary counts leaf results by status.
type Summary struct {
	Total   int
	Passed  int
	Failed  int
	Errored int
	Skipped int
}

func (s *Summary) add(st unit.Status) {
	s.Total++
	switch st {
	case unit.Successful:
		s.Passed++
	case unit.Failed:
		s.Failed++
	case unit.Errored:
		s.Errored++
	default:
		s.Skipped++
	}
}

// Collector records unit events into a result tree. It is the base of the
// buffered sinks and is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	now    func() time.Time
	units  map[*unit.Unit]*Result
	roots  []*Result
	start  time.Time
	onDone func(r *Result)
	onHook func(owner *Result, h HookResult)
}

func NewCollector() *Collector {
	c := &Collector{now: time.Now, units: make(map[*unit.Unit]*Result)}
	c.start = c.now()
	return c
}

func (c *Collector) Started(phase unit.Phase, u *unit.Unit) {
	if phase != unit.PhaseMain {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result(u).Started = c.now()
}

func (c *Collector) Completed(phase unit.Phase, u *unit.Unit) {
	c.finish(phase, u, unit.Successful, "")
}

func (c *Collector) Failed(phase unit.Phase, u *unit.Unit, msg string) {
	c.finish(phase, u, unit.Failed, msg)
}

func (c *Collector) Errored(phase unit.Phase, u *unit.Unit, msg string) {
	c.finish(phase, u, unit.Errored, msg)
}

func (c *Collector) Skipped(phase unit.Phase, u *unit.Unit, msg string) {
	c.finish(phase, u, unit.Skipped, msg)
}

func (c *Collector) finish(phase unit.Phase, u *unit.Unit, status unit.Status, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch phase {
	case unit.PhaseSteps:
		return
	case unit.PhaseMain:
		r := c.result(u)
		r.Status, r.Message = status, msg
		if !r.Started.IsZero() {
			r.Duration = c.now().Sub(r.Started)
		}
		if c.onDone != nil {
			c.onDone(r)
		}
	default:
		if status == unit.Successful || u.Parent() == nil {
			return
		}
		owner := c.result(u.Parent())
		h := HookResult{Phase: phase, Name: u.Label(), Status: status, Message: msg}
		owner.Hooks = append(owner.Hooks, h)
		if c.onHook != nil {
			c.onHook(owner, h)
		}
	}
}

// result returns the record of u, creating it and its ancestors on first use.
func (c *Collector) result(u *unit.Unit) *Result {
	if r, ok := c.units[u]; ok {
		return r
	}
	r := &Result{Unit: u, Name: u.Label(), Path: u.Path(), Status: unit.Pending}
	c.units[u] = r

	parent := u.Parent()
	if parent == nil {
		r.order = len(c.roots)
		c.roots = append(c.roots, r)
		return r
	}
	r.order = indexOf(parent.RunChildren(), u)
	pr := c.result(parent)
	pr.Children = append(pr.Children, r)
	return r
}

func indexOf(list []*unit.Unit, u *unit.Unit) int {
	for i, n := range list {
		if n == u {
			return i
		}
	}
	return len(list)
}

// Roots returns the recorded trees with children in declaration order.
func (c *Collector) Roots() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	stack := append([]*Result(nil), c.roots...)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sort.SliceStable(r.Children, func(i, j int) bool { return r.Children[i].order < r.Children[j].order })
		stack = append(stack, r.Children...)
	}
	return append([]*Result(nil), c.roots...)
}

// Leaves returns the leaf results of every tree in depth-first order.
func (c *Collector) Leaves() []*Result {
	var out []*Result
	var stack []*Result
	roots := c.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.Leaf() {
			out = append(out, r)
			continue
		}
		for i := len(r.Children) - 1; i >= 0; i-- {
			stack = append(stack, r.Children[i])
		}
	}
	return out
}

func (c *Collector) Summary() Summary {
	var s Summary
	for _, r := range c.Leaves() {
		s.add(r.Status)
	}
	return s
}

// Elapsed is the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return c.now().Sub(c.start)
}
