package mcp

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpdesk/config"
)

// ToolAggregator merges per-server tool lists into one name-keyed registry.
// Tool names are not namespaced; on a collision the server listed first
// keeps the name.
type ToolAggregator struct {
	byName map[string]ToolDescriptor
	order  []string
}

func NewToolAggregator() *ToolAggregator {
	return &ToolAggregator{byName: make(map[string]ToolDescriptor)}
}

func (ta *ToolAggregator) Add(tools ...ToolDescriptor) {
	for _, tool := range tools {
		if existing, ok := ta.byName[tool.Name]; ok {
			if existing.ServerName != tool.ServerName {
				config.DebugLog.Printf("[MCP] tool %q from %s shadowed by %s", tool.Name, tool.ServerName, existing.ServerName)
			}
			continue
		}
		ta.byName[tool.Name] = tool
		ta.order = append(ta.order, tool.Name)
	}
}

func (ta *ToolAggregator) Lookup(name string) (ToolDescriptor, bool) {
	tool, ok := ta.byName[name]
	return tool, ok
}

// Descriptors returns the registered tools in insertion order.
func (ta *ToolAggregator) Descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(ta.order))
	for _, name := range ta.order {
		out = append(out, ta.byName[name])
	}
	return out
}

// MCPTools strips the server names for the provider schema converters.
func MCPTools(tools []ToolDescriptor) []mcptypes.Tool {
	out := make([]mcptypes.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Tool)
	}
	return out
}
