package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

const (
	StatusToolName    = "check_mcp_status"
	BuiltinServerName = "mcpdesk"
)

type statusToolInput struct {
	Server string `json:"server,omitempty" jsonschema:"description=Only report the server with this name"`
}

// statusToolDescriptor describes the built-in status tool. It is answered
// locally and never reaches a child process.
func statusToolDescriptor() ToolDescriptor {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(&statusToolInput{})

	input := mcptypes.ToolInputSchema{Type: "object", Properties: map[string]any{}}
	if data, err := json.Marshal(schema); err == nil {
		var reflected mcptypes.ToolInputSchema
		if err := json.Unmarshal(data, &reflected); err == nil && reflected.Properties != nil {
			input.Properties = reflected.Properties
			input.Required = reflected.Required
		}
	}

	return ToolDescriptor{
		Tool: mcptypes.Tool{
			Name:        StatusToolName,
			Description: "Report the status of the configured MCP tool servers: whether each is running, its uptime, tool count and recent errors.",
			InputSchema: input,
		},
		ServerName: BuiltinServerName,
	}
}

// FormatStatus renders snapshots as the status tool's text output. An
// empty filter reports every server.
func FormatStatus(snapshots []ServerSnapshot, filter string) string {
	if len(snapshots) == 0 {
		return "No MCP servers are configured."
	}

	var b strings.Builder
	matched := 0
	for _, snap := range snapshots {
		if filter != "" && snap.Name != filter {
			continue
		}
		if matched == 0 {
			b.WriteString("MCP server status:\n")
		}
		matched++

		fmt.Fprintf(&b, "- %s", snap.Name)
		if snap.Description != "" {
			fmt.Fprintf(&b, " (%s)", snap.Description)
		}
		fmt.Fprintf(&b, ": %s", snap.Status)
		if snap.Status == StatusRunning {
			fmt.Fprintf(&b, ", pid %d, uptime %s, %d tools", snap.PID, snap.Uptime, snap.ToolCount)
		}
		b.WriteString("\n")
		if snap.LastError != "" {
			fmt.Fprintf(&b, "  last error: %s\n", snap.LastError)
		}
		if n := len(snap.RecentErrors); n > 0 {
			fmt.Fprintf(&b, "  recent stderr: %s\n", snap.RecentErrors[n-1].Text)
		}
	}

	if matched == 0 {
		return fmt.Sprintf("No MCP server named %q is configured.", filter)
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusFilter(input map[string]any) string {
	if input == nil {
		return ""
	}
	if s, ok := input["server"].(string); ok {
		return s
	}
	return ""
}
