package mcp

import (
	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
)

// ConvertMCPToolsToOpenAIFormat converts MCP tools to the OpenAI function
// tool format. Any OpenAI-compatible endpoint accepts the same shape.
//
//	{"type": "function", "function": {"name": ..., "description": ..., "parameters": {...}}}
func ConvertMCPToolsToOpenAIFormat(mcpTools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		schemaType := tool.InputSchema.Type
		if schemaType == "" {
			schemaType = "object"
		}
		properties := tool.InputSchema.Properties
		if properties == nil {
			properties = map[string]any{}
		}

		params := openai.FunctionParameters{
			"type":       schemaType,
			"properties": properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		fn := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: params,
		}
		if tool.Description != "" {
			fn.Description = openai.String(tool.Description)
		}
		result[i] = openai.ChatCompletionFunctionTool(fn)
	}
	return result
}

// ConvertMCPToolsToAnthropicFormat converts MCP tools to Anthropic tool
// params. The input schema type defaults to "object" on the Anthropic side.
func ConvertMCPToolsToAnthropicFormat(mcpTools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}
		if inputSchema.Properties == nil {
			inputSchema.Properties = map[string]any{}
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}
