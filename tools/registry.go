// Package tools maps every DevHub tool name to its argument schema and the
// backend operation that serves it.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/services"
)

// Handler runs one tool call. Missing arguments read as the empty string.
type Handler func(ctx context.Context, call devhub.ToolCall) (any, error)

// Param describes one string argument of a tool.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Spec is the planning-facing description of a tool.
type Spec struct {
	Name        devhub.ToolName `json:"name"`
	Description string          `json:"description"`
	Params      []Param         `json:"params"`
}

// Tool pairs a spec with its handler.
type Tool struct {
	Spec    Spec
	Handler Handler
}

// Registry is a total mapping from ToolName to Tool.
type Registry struct {
	tools map[devhub.ToolName]Tool
}

// NewRegistry validates that tools covers every ToolName exactly once and
// nothing else.
func NewRegistry(tools map[devhub.ToolName]Tool) (*Registry, error) {
	r := &Registry{tools: make(map[devhub.ToolName]Tool, len(tools))}
	for name, tool := range tools {
		if _, ok := devhub.ParseToolName(string(name)); !ok {
			return nil, fmt.Errorf("tool '%s' is not a known tool", name)
		}
		if tool.Handler == nil {
			return nil, fmt.Errorf("tool '%s' has no handler", name)
		}
		if tool.Spec.Name == "" {
			tool.Spec.Name = name
		}
		if tool.Spec.Name != name {
			return nil, fmt.Errorf("tool '%s' registered under '%s'", tool.Spec.Name, name)
		}
		r.tools[name] = tool
	}
	for _, name := range devhub.AllTools() {
		if _, ok := r.tools[name]; !ok {
			return nil, fmt.Errorf("tool '%s' has no handler", name)
		}
	}
	return r, nil
}

// New builds the standard registry over the three backends.
func New(docs *services.DocSearch, dir *services.Directory, health *services.Health) (*Registry, error) {
	if docs == nil || dir == nil || health == nil {
		return nil, fmt.Errorf("all three backends are required")
	}
	return NewRegistry(map[devhub.ToolName]Tool{
		devhub.ToolSearchDocs: {
			Spec: Spec{
				Name:        devhub.ToolSearchDocs,
				Description: "Search the developer documentation. Returns the most relevant documents with a similarity distance (lower is better).",
				Params:      []Param{{Name: "query", Description: "what to look for"}},
			},
			Handler: func(ctx context.Context, call devhub.ToolCall) (any, error) {
				return docs.Search(ctx, call.Arg("query"), services.DefaultTopK)
			},
		},
		devhub.ToolFindOwner: {
			Spec: Spec{
				Name:        devhub.ToolFindOwner,
				Description: "Find who owns a service, with their contact details, team and team channel.",
				Params:      []Param{{Name: "service", Description: "service name or topic"}},
			},
			Handler: func(ctx context.Context, call devhub.ToolCall) (any, error) {
				return dir.FindOwner(ctx, call.Arg("service"))
			},
		},
		devhub.ToolCheckStatus: {
			Spec: Spec{
				Name:        devhub.ToolCheckStatus,
				Description: "Check the current health of a service, including uptime and any active incident.",
				Params:      []Param{{Name: "service", Description: "service name"}},
			},
			Handler: func(ctx context.Context, call devhub.ToolCall) (any, error) {
				return health.CheckStatus(ctx, call.Arg("service"))
			},
		},
	})
}

// Lookup returns the tool registered for name.
func (r *Registry) Lookup(name devhub.ToolName) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Specs returns every tool spec in AllTools order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.tools))
	for _, name := range devhub.AllTools() {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Describe renders the tool list for the planning instruction, one line per
// tool:
//
//   - search_docs(query): Search the developer documentation. ...
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, spec := range r.Specs() {
		names := make([]string, len(spec.Params))
		for i, p := range spec.Params {
			names[i] = p.Name
		}
		fmt.Fprintf(&sb, "- %s(%s): %s\n", spec.Name, strings.Join(names, ", "), spec.Description)
	}
	return sb.String()
}
