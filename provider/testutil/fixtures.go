package testutil

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpdesk/model"
)

// TestMessages returns a sample text-only conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		model.NewTextMessage(model.RoleUser, "Hello, how are you?"),
		model.NewTextMessage(model.RoleAssistant, "I'm doing well, thank you!"),
		model.NewTextMessage(model.RoleUser, "Can you help me with a task?"),
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{model.NewTextMessage(model.RoleUser, content)}
}

// TwoToolHistory returns the history a turn with two sequential tool calls
// leaves behind: user prompt, assistant text plus two tool uses, the two
// results (the second one failed), and the continuation reply.
func TwoToolHistory() []model.Message {
	return []model.Message{
		model.NewTextMessage(model.RoleUser, "What's the weather in Paris, and what is 6*7?"),
		model.NewBlockMessage(model.RoleAssistant,
			model.TextBlock{Text: "Let me check both."},
			model.ToolUseBlock{ID: "t1", Name: "get_weather", Input: map[string]any{"location": "Paris"}},
			model.ToolUseBlock{ID: "t2", Name: "calculate", Input: map[string]any{"expression": "6*7"}},
		),
		model.NewBlockMessage(model.RoleUser,
			model.ToolResultBlock{ToolUseID: "t1", Content: "Sunny, 21C"},
			model.ToolResultBlock{ToolUseID: "t2", Content: "calculator unavailable", IsError: true},
		),
		model.NewTextMessage(model.RoleAssistant, "It's sunny and 21C in Paris. I couldn't compute 6*7."),
	}
}

// TestMCPTools returns sample MCP tools for testing
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}
