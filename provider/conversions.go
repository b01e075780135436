package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"

	"mcpdesk/model"
)

// FlattenContent renders a message as one text blob for providers that
// only take string content. Tool blocks become bracketed annotations so
// the model can still follow earlier tool interactions.
//
//	[Used tool: read_file with input: {"path":"go.mod"}]
//	[Tool result: module mcpdesk]
func FlattenContent(msg model.Message) string {
	if !msg.HasBlocks() {
		return msg.Text
	}

	parts := make([]string, 0, len(msg.Blocks))
	for _, block := range msg.Blocks {
		switch b := block.(type) {
		case model.TextBlock:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case model.ToolUseBlock:
			parts = append(parts, fmt.Sprintf("[Used tool: %s with input: %s]", b.Name, encodeInput(b.Input)))
		case model.ToolResultBlock:
			if b.IsError {
				parts = append(parts, fmt.Sprintf("[Tool error: %s]", b.Content))
			} else {
				parts = append(parts, fmt.Sprintf("[Tool result: %s]", b.Content))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func encodeInput(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ConvertToOpenAIMessages flattens history into OpenAI chat messages.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		content := FlattenContent(msg)
		switch msg.Role {
		case model.RoleAssistant:
			result = append(result, openai.AssistantMessage(content))
		default:
			result = append(result, openai.UserMessage(content))
		}
	}
	return result
}

// ConvertToAnthropicMessages keeps content blocks native. Empty text
// blocks are dropped since the API rejects them.
func ConvertToAnthropicMessages(messages []model.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		if !msg.HasBlocks() {
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
		}
		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case model.TextBlock:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case model.ToolUseBlock:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case model.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		switch msg.Role {
		case model.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

// ConvertToAnthropicTextMessages flattens every message to plain text. The
// Messages API rejects tool_use and tool_result blocks in a request that
// defines no tools, which is the shape of a continuation phase.
func ConvertToAnthropicTextMessages(messages []model.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		text := FlattenContent(msg)
		if text == "" {
			continue
		}
		if msg.Role == model.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		} else {
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	return result
}

func hasToolBlocks(messages []model.Message) bool {
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			switch block.(type) {
			case model.ToolUseBlock, model.ToolResultBlock:
				return true
			}
		}
	}
	return false
}
