package agent

import (
	"context"

	"github.com/signalnine/papertune/internal/answer"
	"github.com/signalnine/papertune/internal/tool"
)

// state is the policy's view of one conversation: which capabilities have
// been attempted and what each tool returned.
type state struct {
	tools     *tool.Set
	ordered   []tool.Tool
	attempted map[tool.Capability]bool
	status    map[string]tool.Status
	found     bool
	missed    bool
	calls     int
}

func newState(tools *tool.Set, order []tool.Capability) *state {
	return &state{
		tools:     tools,
		ordered:   tools.Ordered(order),
		attempted: make(map[tool.Capability]bool),
		status:    make(map[string]tool.Status),
	}
}

// pending returns the next tool the policy must call before an answer is
// allowed, or nil. With no calls at all the first capability is owed. Once
// any call came back EMPTY or ERROR, or while nothing has been found, every
// capability not yet attempted is owed in order, even if a later call found
// something.
func (s *state) pending() tool.Tool {
	if s.found && !s.missed {
		return nil
	}
	for _, t := range s.ordered {
		if !s.attempted[t.Definition().Capability] {
			return t
		}
	}
	return nil
}

func (s *state) invoke(ctx context.Context, t tool.Tool, call tool.Call) string {
	def := t.Definition()
	r := t.Invoke(ctx, call)
	s.calls++
	s.attempted[def.Capability] = true
	if r.Status == tool.StatusFound {
		s.found = true
	} else {
		s.missed = true
	}
	if s.status[def.Name] != tool.StatusFound {
		s.status[def.Name] = r.Status
	}
	return tool.Render(def, r)
}

// entries renders the ground-truth TOOL_LOG lines in capability order.
func (s *state) entries() []answer.LogEntry {
	out := make([]answer.LogEntry, 0, len(s.ordered))
	for _, t := range s.ordered {
		def := t.Definition()
		st, used := s.status[def.Name]
		e := answer.LogEntry{Tool: def.Name, Used: used, Status: st}
		switch st {
		case tool.StatusEmpty:
			e.Marker = tool.EmptyMarker(def)
		case tool.StatusError:
			e.Marker = tool.ErrorMarker(def)
		}
		out = append(out, e)
	}
	return out
}
