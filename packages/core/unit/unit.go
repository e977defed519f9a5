package unit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
)

// Kind is the shape of a unit's main work.
type Kind int

const (
	// Group units own child units.
	Group Kind = iota
	// Leaf units own a flat step list, possibly empty.
	Leaf
	// DataDriven units fan out into one child per provider row.
	DataDriven
)

func (k Kind) String() string {
	switch k {
	case Group:
		return "group"
	case DataDriven:
		return "data"
	default:
		return "leaf"
	}
}

// Row is one parameter set produced by a DataProvider.
type Row struct {
	Name   string
	Values map[string]any
}

// DataProvider supplies the rows of a data-driven unit. It is called once
// per activation of the unit.
type DataProvider interface {
	Rows(ctx context.Context) ([]Row, error)
}

// ProviderFunc adapts a function to DataProvider.
type ProviderFunc func(ctx context.Context) ([]Row, error)

func (f ProviderFunc) Rows(ctx context.Context) ([]Row, error) { return f(ctx) }

// Unit is a node of the execution tree.
type Unit struct {
	label       string
	description string
	source      any
	kind        Kind
	parent      *Unit

	children []*Unit
	steps    []step.Step

	setup, cleanup          *Unit
	beforeChild, afterChild *Unit
	dataSetup, dataCleanup  *Unit

	provider      DataProvider
	sharedContext bool
	row           *Row

	parallelism int
	deps        []*Unit
	dependents  []*Unit
	expect      ErrorMatcher

	mu     sync.Mutex
	status Status
	err    error
	rows   []*Unit
}

func (u *Unit) Label() string       { return u.label }
func (u *Unit) Description() string { return u.description }
func (u *Unit) Source() any         { return u.source }
func (u *Unit) Kind() Kind          { return u.kind }

// Parent returns the enclosing unit. Hooks report the unit declaring them.
func (u *Unit) Parent() *Unit { return u.parent }

func (u *Unit) Children() []*Unit      { return u.children }
func (u *Unit) Steps() []step.Step     { return u.steps }
func (u *Unit) Setup() *Unit           { return u.setup }
func (u *Unit) Cleanup() *Unit         { return u.cleanup }
func (u *Unit) BeforeChild() *Unit     { return u.beforeChild }
func (u *Unit) AfterChild() *Unit      { return u.afterChild }
func (u *Unit) DataSetup() *Unit       { return u.dataSetup }
func (u *Unit) DataCleanup() *Unit     { return u.dataCleanup }
func (u *Unit) Provider() DataProvider { return u.provider }

// SharedContext reports whether data rows run against the unit's own
// context instead of an isolated copy.
func (u *Unit) SharedContext() bool { return u.sharedContext }

// Row returns the data row a synthesized row unit was created for.
func (u *Unit) Row() *Row { return u.row }

// Parallelism is the number of children run concurrently. Values up to 1
// mean sequential execution.
func (u *Unit) Parallelism() int { return u.parallelism }

// Dependencies returns the siblings that must finish before u starts.
func (u *Unit) Dependencies() []*Unit { return u.deps }

// Dependents returns the siblings that declared u as a dependency.
func (u *Unit) Dependents() []*Unit { return u.dependents }

// Expect returns the error the unit is expected to raise, if any.
func (u *Unit) Expect() ErrorMatcher { return u.expect }

// Path is the slash separated chain of labels from the root.
func (u *Unit) Path() string {
	var parts []string
	for n := u; n != nil; n = n.parent {
		parts = append(parts, n.label)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func (u *Unit) String() string { return u.Path() }

func (u *Unit) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Err returns the error that decided the unit's status, if any.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Start moves a pending unit to IN_PROGRESS. It returns false if the unit
// was already started or finished.
func (u *Unit) Start() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status != Pending {
		return false
	}
	u.status = InProgress
	return true
}

// Finish records the terminal status of the unit. A unit that is already
// terminal keeps its first outcome; Finish then returns false.
func (u *Unit) Finish(status Status, err error) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status.IsTerminal() {
		return false
	}
	u.status = status
	u.err = err
	return true
}

// MaterializeRows creates one child unit per row. Each child holds a fresh
// clone of the parent's step template.
func (u *Unit) MaterializeRows(rows []Row) []*Unit {
	out := make([]*Unit, len(rows))
	for i := range rows {
		r := rows[i]
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("row %d", i+1)
		}
		steps := make([]step.Step, len(u.steps))
		for j, s := range u.steps {
			steps[j] = s.Clone()
		}
		out[i] = &Unit{
			label:  fmt.Sprintf("%s[%s]", u.label, name),
			source: u.source,
			kind:   Leaf,
			parent: u,
			steps:  steps,
			row:    &r,
			expect: u.expect,
		}
	}
	u.mu.Lock()
	u.rows = out
	u.mu.Unlock()
	return out
}

// Rows returns the children synthesized by the last MaterializeRows call.
func (u *Unit) Rows() []*Unit {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rows
}

// RunChildren returns the children the unit executes: its declared children
// or, for data-driven units, the materialized rows.
func (u *Unit) RunChildren() []*Unit {
	if u.kind == DataDriven {
		return u.Rows()
	}
	return u.children
}

// Walk visits u and every descendant in depth-first pre-order, without
// recursion. Hooks are not visited. Returning false from fn prunes the
// subtree below the visited unit.
func (u *Unit) Walk(fn func(n *Unit, depth int) bool) {
	type item struct {
		n     *Unit
		depth int
	}
	stack := []item{{u, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(it.n, it.depth) {
			continue
		}
		kids := it.n.RunChildren()
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, item{kids[i], it.depth + 1})
		}
	}
}

// Hooks returns the declared hook units of u in phase order.
func (u *Unit) Hooks() []*Unit {
	var out []*Unit
	for _, h := range []*Unit{u.beforeChild, u.setup, u.dataSetup, u.dataCleanup, u.cleanup, u.afterChild} {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
