package tool

import (
	"fmt"
	"slices"
)

// Set is an ordered registry of tools keyed by name.
type Set struct {
	tools []Tool
	index map[string]int
}

func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{index: make(map[string]int, len(tools))}
	for _, t := range tools {
		if err := s.add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) add(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, dup := s.index[name]; dup {
		return fmt.Errorf("duplicate tool %q", name)
	}
	s.index[name] = len(s.tools)
	s.tools = append(s.tools, t)
	return nil
}

func (s *Set) Get(name string) (Tool, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.tools[i], true
}

func (s *Set) All() []Tool {
	return slices.Clone(s.tools)
}

func (s *Set) Definitions() []Definition {
	defs := make([]Definition, len(s.tools))
	for i, t := range s.tools {
		defs[i] = t.Definition()
	}
	return defs
}

func (s *Set) Len() int { return len(s.tools) }

// Ordered returns the tools sorted by capability order. Tools whose capability
// is not listed keep their registration order after the listed ones.
func (s *Set) Ordered(order []Capability) []Tool {
	rank := func(c Capability) int {
		if i := slices.Index(order, c); i >= 0 {
			return i
		}
		return len(order)
	}
	out := s.All()
	slices.SortStableFunc(out, func(a, b Tool) int {
		return rank(a.Definition().Capability) - rank(b.Definition().Capability)
	})
	return out
}

// Wrap returns a new set where every tool has been passed through fn.
func (s *Set) Wrap(fn func(Tool) Tool) *Set {
	out := &Set{index: make(map[string]int, len(s.tools)), tools: make([]Tool, len(s.tools))}
	for i, t := range s.tools {
		out.tools[i] = fn(t)
		out.index[t.Definition().Name] = i
	}
	return out
}
