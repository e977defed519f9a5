package unit

import (
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
)

// Builder assembles a unit and its subtree. Builders are single use: a
// builder may appear only once in a tree.
type Builder struct {
	label       string
	description string
	source      any

	children []*Builder
	steps    []step.Step
	hasSteps bool

	setup, cleanup          *Builder
	beforeChild, afterChild *Builder
	dataSetup, dataCleanup  *Builder

	provider      DataProvider
	template      []step.Step
	sharedContext bool

	parallelism int
	deps        []*Builder
	expect      ErrorMatcher
}

func NewBuilder(label string) *Builder {
	return &Builder{label: label}
}

func (b *Builder) Label() string { return b.label }

func (b *Builder) Description(d string) *Builder { b.description = d; return b }

// Source attaches an opaque reference to the definition the unit came from.
func (b *Builder) Source(src any) *Builder { b.source = src; return b }

func (b *Builder) Setup(h *Builder) *Builder       { b.setup = h; return b }
func (b *Builder) Cleanup(h *Builder) *Builder     { b.cleanup = h; return b }
func (b *Builder) BeforeChild(h *Builder) *Builder { b.beforeChild = h; return b }
func (b *Builder) AfterChild(h *Builder) *Builder  { b.afterChild = h; return b }
func (b *Builder) DataSetup(h *Builder) *Builder   { b.dataSetup = h; return b }
func (b *Builder) DataCleanup(h *Builder) *Builder { b.dataCleanup = h; return b }

// Child appends child units.
func (b *Builder) Child(children ...*Builder) *Builder {
	b.children = append(b.children, children...)
	return b
}

// Steps appends steps to the unit's flat step list.
func (b *Builder) Steps(steps ...step.Step) *Builder {
	b.steps = append(b.steps, steps...)
	b.hasSteps = true
	return b
}

// Rows makes the unit data-driven: every row returned by p runs template
// once as a separate child unit.
func (b *Builder) Rows(p DataProvider, template ...step.Step) *Builder {
	b.provider = p
	b.template = append(b.template, template...)
	return b
}

// SharedContext lets data rows read and write the unit's own context
// instead of an isolated copy.
func (b *Builder) SharedContext(shared bool) *Builder { b.sharedContext = shared; return b }

func (b *Builder) Parallelism(n int) *Builder { b.parallelism = n; return b }

// DependsOn declares sibling units that must reach a terminal status first.
func (b *Builder) DependsOn(deps ...*Builder) *Builder {
	b.deps = append(b.deps, deps...)
	return b
}

// Expect declares that the unit's steps must raise an error accepted by m.
// Only leaf and data-driven units accept it.
func (b *Builder) Expect(m ErrorMatcher) *Builder { b.expect = m; return b }

// Build validates the tree rooted at b and returns it.
func (b *Builder) Build() (*Unit, error) {
	if len(b.deps) > 0 {
		return nil, failure.Configf(b.label, "the root unit cannot declare dependencies")
	}
	c := &compiler{seen: make(map[*Builder]*Unit)}
	u, err := c.unit(b, nil)
	if err != nil {
		return nil, err
	}
	if err := c.link(); err != nil {
		return nil, err
	}
	return u, nil
}

type siblings struct {
	parent   string
	builders []*Builder
}

type compiler struct {
	seen   map[*Builder]*Unit
	groups []siblings
}

// unit compiles one builder. Recursion depth follows the nesting of builder
// calls in the caller's source, not the run-time tree.
func (c *compiler) unit(b *Builder, parent *Unit) (*Unit, error) {
	if b == nil {
		return nil, nil
	}
	if _, dup := c.seen[b]; dup {
		return nil, failure.Configf(b.label, "builder used more than once in the tree")
	}

	u := &Unit{
		label:         b.label,
		description:   b.description,
		source:        b.source,
		parent:        parent,
		sharedContext: b.sharedContext,
		parallelism:   b.parallelism,
		expect:        b.expect,
	}
	c.seen[b] = u

	switch {
	case b.provider != nil && b.hasSteps:
		return nil, failure.Configf(b.label, "a data-driven unit cannot declare direct steps")
	case b.provider != nil && len(b.children) > 0:
		return nil, failure.Configf(b.label, "a data-driven unit cannot declare children")
	case len(b.children) > 0 && b.hasSteps:
		return nil, failure.Configf(b.label, "a unit cannot declare both children and steps")
	case b.provider != nil:
		u.kind = DataDriven
		u.provider = b.provider
		u.steps = b.template
	case len(b.children) > 0:
		u.kind = Group
	default:
		u.kind = Leaf
		u.steps = b.steps
	}
	if u.kind == Group && b.expect != nil {
		return nil, failure.Configf(b.label, "a group unit cannot declare an expected error")
	}
	if b.dataSetup != nil || b.dataCleanup != nil {
		if u.kind != DataDriven {
			return nil, failure.Configf(b.label, "data hooks require a data provider")
		}
	}

	hooks := []struct {
		src *Builder
		dst **Unit
	}{
		{b.setup, &u.setup}, {b.cleanup, &u.cleanup},
		{b.beforeChild, &u.beforeChild}, {b.afterChild, &u.afterChild},
		{b.dataSetup, &u.dataSetup}, {b.dataCleanup, &u.dataCleanup},
	}
	for _, h := range hooks {
		if h.src == nil {
			continue
		}
		if len(h.src.deps) > 0 {
			return nil, failure.Configf(h.src.label, "a hook unit cannot declare dependencies")
		}
		hu, err := c.unit(h.src, u)
		if err != nil {
			return nil, err
		}
		*h.dst = hu
	}

	for _, cb := range b.children {
		if cb == nil {
			return nil, failure.Configf(b.label, "nil child")
		}
		cu, err := c.unit(cb, u)
		if err != nil {
			return nil, err
		}
		u.children = append(u.children, cu)
	}
	if len(b.children) > 0 {
		c.groups = append(c.groups, siblings{parent: b.label, builders: b.children})
	}
	return u, nil
}

// link resolves dependency edges and rejects edges leaving a sibling set and
// cycles within one.
func (c *compiler) link() error {
	for _, g := range c.groups {
		index := make(map[*Builder]int, len(g.builders))
		for i, b := range g.builders {
			index[b] = i
		}
		indegree := make([]int, len(g.builders))
		for i, b := range g.builders {
			u := c.seen[b]
			for _, d := range b.deps {
				if d == b {
					return failure.Configf(b.label, "unit depends on itself")
				}
				if _, ok := index[d]; !ok {
					return failure.Configf(b.label, "dependency %q is not a sibling under %q", labelOf(d), g.parent)
				}
				du := c.seen[d]
				u.deps = append(u.deps, du)
				du.dependents = append(du.dependents, u)
				indegree[i]++
			}
		}
		if cycle := kahn(g.builders, index, indegree); len(cycle) > 0 {
			return failure.Configf(g.parent, "dependency cycle among %s", strings.Join(cycle, ", "))
		}
	}
	return nil
}

// kahn runs a topological sort over one sibling set and returns the labels
// of the units left unsorted, which are exactly those on or behind a cycle.
func kahn(builders []*Builder, index map[*Builder]int, indegree []int) []string {
	dependents := make([][]int, len(builders))
	for i, b := range builders {
		for _, d := range b.deps {
			j := index[d]
			dependents[j] = append(dependents[j], i)
		}
	}

	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	sorted := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sorted++
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if sorted == len(builders) {
		return nil
	}
	var left []string
	for i, d := range indegree {
		if d > 0 {
			left = append(left, builders[i].label)
		}
	}
	return left
}

func labelOf(b *Builder) string {
	if b == nil {
		return "<nil>"
	}
	return b.label
}
