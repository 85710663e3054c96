// Package tool defines the capability contract shared by every search tool the
// agent can call.
package tool

import (
	"context"
	"fmt"
	"strings"
)

// Capability identifies what a tool does, independent of which backend serves it.
type Capability string

const (
	CapabilitySimilarity Capability = "similarity-search"
	CapabilityLive       Capability = "live-search"
)

// DefaultOrder is the order in which the agent falls back across capabilities.
var DefaultOrder = []Capability{CapabilitySimilarity, CapabilityLive}

type Status string

const (
	StatusFound Status = "FOUND"
	StatusEmpty Status = "EMPTY"
	StatusError Status = "ERROR"
)

// Hit is one search result. Title and Identifier are what an answer may cite.
type Hit struct {
	Title      string `json:"title"`
	Identifier string `json:"identifier,omitempty"`
	Snippet    string `json:"snippet"`
}

// Result is the three-way outcome of an invocation: hits, an empty marker, or
// an error marker. A zero-hit Found is normalized to Empty.
type Result struct {
	Status Status
	Hits   []Hit
	Err    error
}

func Found(hits []Hit) Result {
	if len(hits) == 0 {
		return Empty()
	}
	return Result{Status: StatusFound, Hits: hits}
}

func Empty() Result {
	return Result{Status: StatusEmpty}
}

func Failed(err error) Result {
	if err == nil {
		err = fmt.Errorf("unknown tool failure")
	}
	return Result{Status: StatusError, Err: err}
}

// Call is the input to a tool. Limit is a hint; zero means the tool default.
type Call struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Definition describes a tool to the language model and to the agent policy.
// Marker prefixes the EMPTY/ERROR markers rendered to the model, e.g. RAG_EMPTY.
type Definition struct {
	Name        string
	Description string
	Capability  Capability
	Marker      string
	Parameters  map[string]any
}

// Tool is implemented by every search backend. Invoke must not panic on zero
// matches and must report transport failures as StatusError.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, call Call) Result
}

// QueryParameters is the JSON schema shared by tools that only take a query.
func QueryParameters(withLimit bool) map[string]any {
	props := map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Free-text search query.",
		},
	}
	if withLimit {
		props["limit"] = map[string]any{
			"type":        "integer",
			"description": "Maximum number of results to return.",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"query"},
	}
}

// EmptyMarker returns the rendered empty marker for a tool, e.g. ARXIV_EMPTY.
func EmptyMarker(def Definition) string {
	return markerPrefix(def) + "_EMPTY"
}

// ErrorMarker returns the rendered error marker for a tool, e.g. ARXIV_ERROR.
func ErrorMarker(def Definition) string {
	return markerPrefix(def) + "_ERROR"
}

func markerPrefix(def Definition) string {
	if def.Marker != "" {
		return strings.ToUpper(def.Marker)
	}
	return strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(def.Name))
}

// Render formats a result as the text the language model sees.
func Render(def Definition, r Result) string {
	switch r.Status {
	case StatusFound:
		var b strings.Builder
		for i, h := range r.Hits {
			if i > 0 {
				b.WriteString("\n\n---\n\n")
			}
			switch {
			case h.Identifier != "" && h.Title != "":
				fmt.Fprintf(&b, "[%s] %s (%s)\n%s", def.Name, h.Title, h.Identifier, h.Snippet)
			case h.Title != "":
				fmt.Fprintf(&b, "[%s] %s\n%s", def.Name, h.Title, h.Snippet)
			default:
				fmt.Fprintf(&b, "[%s]\n%s", def.Name, h.Snippet)
			}
		}
		return b.String()
	case StatusError:
		return fmt.Sprintf("%s: %v", ErrorMarker(def), r.Err)
	default:
		return fmt.Sprintf("%s: no matching results found.", EmptyMarker(def))
	}
}
