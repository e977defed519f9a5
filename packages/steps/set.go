package steps

import (
	"context"
	"sort"

	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"go.uber.org/zap"
)

// Set assigns variables. A value that is a single placeholder keeps the
// type of what it refers to.
type Set struct {
	base
	Vars map[string]any
}

func NewSet(name string, vars map[string]any) *Set {
	if name == "" {
		name = "set"
	}
	return &Set{base: base{name: name}, Vars: vars}
}

func (s *Set) Clone() step.Step {
	c := *s
	c.Vars = make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		c.Vars[k] = v
	}
	return &c
}

func (s *Set) Execute(_ context.Context, sc step.Context, log *zap.Logger) (bool, error) {
	keys := make([]string, 0, len(s.Vars))
	for k := range s.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := resolveValue(sc, s.Vars[k])
		sc.Set(k, v)
		log.Debug("variable set", zap.String("name", k), zap.Any("value", v))
	}
	return true, nil
}
