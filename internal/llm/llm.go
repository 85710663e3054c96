// Package llm is the boundary to the language-model completion service.
package llm

import (
	"context"
	"errors"

	"github.com/signalnine/papertune/internal/tool"
)

// ErrMalformed marks a completion that could not be interpreted, such as a
// response without choices.
var ErrMalformed = errors.New("malformed completion")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

type Request struct {
	System   string
	Messages []Message
	// Tools offered for this turn. Empty forces a text answer.
	Tools []tool.Definition
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client returns either tool call requests or a final answer for a
// conversation. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Model() string
}
