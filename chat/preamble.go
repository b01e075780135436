package chat

import (
	"fmt"
	"slices"
	"strings"

	"mcpdesk/mcp"
)

// Categories for the well-known servers. Anything else is described by its
// configured description, or just its name.
var toolCategories = map[string]string{
	"filesystem": "File system access (read, write, list and search files)",
	"browser":    "Browser automation (navigate pages, click, type, take snapshots)",
}

// buildToolPreamble describes the running tool servers so the model knows
// what it can reach. It returns "" when no server is running.
func buildToolPreamble(tools []mcp.ToolDescriptor, running []mcp.ServerSnapshot) string {
	if len(running) == 0 {
		return ""
	}

	byServer := make(map[string][]string)
	for _, tool := range tools {
		byServer[tool.ServerName] = append(byServer[tool.ServerName], tool.Name)
	}

	lines := []string{"You have access to tools through the following services:"}
	for _, srv := range running {
		category, ok := toolCategories[srv.Name]
		if !ok {
			category = srv.Name
			if srv.Description != "" {
				category = fmt.Sprintf("%s: %s", srv.Name, srv.Description)
			}
		}
		names := byServer[srv.Name]
		if len(names) == 0 {
			lines = append(lines, "- "+category)
			continue
		}
		slices.Sort(names)
		lines = append(lines, fmt.Sprintf("- %s [%s]", category, strings.Join(names, ", ")))
	}

	lines = append(lines,
		fmt.Sprintf("- Server status [%s]", mcp.StatusToolName),
		"",
		"When a request needs a tool, call it directly with the required parameters.",
		"If a required parameter is missing, ask for that parameter only.",
	)
	return strings.Join(lines, "\n")
}

func withPreamble(preamble, text string) string {
	if preamble == "" {
		return text
	}
	return preamble + "\n\nUser request: " + text
}
