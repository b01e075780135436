package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mcpdesk/config"
	"mcpdesk/mcp"
	"mcpdesk/model"
)

var openAIFallbackModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}

// openAICompatible is the streaming core shared by every adapter that
// speaks the Chat Completions API. History is flattened to text.
type openAICompatible struct {
	id           string
	client       openai.Client
	defaultModel string
	maxTokens    int64
	temperature  float64
	recorder     model.RawRecorder
	probeBackoff time.Duration
}

func newOpenAICompatible(id string, cfg Config, opts ...option.RequestOption) openAICompatible {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.GetProviderDefaultBaseURL(id)
	}
	defaultModel := cfg.Model
	if defaultModel == "" {
		defaultModel = config.GetProviderDefaultModel(id)
	}

	clientOpts := append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	}, opts...)

	return openAICompatible{
		id:           id,
		client:       openai.NewClient(clientOpts...),
		defaultModel: defaultModel,
		maxTokens:    orDefaultTokens(cfg.MaxTokens),
		temperature:  orDefaultTemperature(cfg.Temperature),
		recorder:     cfg.Recorder,
		probeBackoff: probeBackoff(cfg),
	}
}

func (c *openAICompatible) ID() string {
	return c.id
}

func (c *openAICompatible) DefaultModel() string {
	return c.defaultModel
}

// listModels is the authenticated probe: one models.list call, retried on
// transient failures.
func (c *openAICompatible) listModels(ctx context.Context) ([]string, error) {
	var ids []string
	err := retryTransient(ctx, c.id, probeAttempts, c.probeBackoff, func(ctx context.Context) error {
		page, err := c.client.Models.List(ctx, option.WithMaxRetries(0))
		if err != nil {
			return classifyError(c.id, err)
		}
		ids = ids[:0]
		for _, m := range page.Data {
			ids = append(ids, m.ID)
		}
		return nil
	})
	recordRaw(c.recorder, c.id, "models.list", nil, ids, err)
	return ids, err
}

func (c *openAICompatible) StreamTurn(ctx context.Context, modelID string, messages []model.Message, tools []mcptypes.Tool, callback model.ChunkCallback) error {
	if modelID == "" {
		modelID = c.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(modelID),
		Messages:    ConvertToOpenAIMessages(messages),
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(tools)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	assembler := NewToolCallAssembler(c.id)
	var callbackErr error

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if callbackErr = callback(model.TextDelta(delta.Content)); callbackErr != nil {
				break
			}
		}
		for _, tc := range delta.ToolCalls {
			key := int(tc.Index)
			assembler.Begin(key, tc.ID, tc.Function.Name)
			if block := assembler.Append(key, tc.Function.Arguments); block != nil {
				if callbackErr = emitToolUse(callback, block); callbackErr != nil {
					break
				}
			}
		}
		if callbackErr != nil {
			break
		}
	}

	streamErr := classifyError(c.id, stream.Err())
	if callbackErr == nil && streamErr == nil {
		for _, block := range assembler.FinishAll() {
			if callbackErr = emitToolUse(callback, &block); callbackErr != nil {
				break
			}
		}
	}

	recordRaw(c.recorder, c.id, "chat.completions.stream", params, rawResponse(acc.ChatCompletion, assembler.Abandoned()), firstErr(callbackErr, streamErr))

	if callbackErr != nil {
		return callbackErr
	}
	if streamErr != nil {
		return fmt.Errorf("%s streaming error: %w", c.id, streamErr)
	}
	return callback(model.StreamEnd())
}

// OpenAIProvider talks to api.openai.com.
type OpenAIProvider struct {
	openAICompatible
}

func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &AuthError{Provider: string(ProviderTypeOpenAI), Message: "API key is required"}
	}
	return &OpenAIProvider{newOpenAICompatible(string(ProviderTypeOpenAI), cfg)}, nil
}

// Initialize lists models and keeps the chat-capable ones. When listing
// fails for any reason other than credentials, a fixed list is used.
func (p *OpenAIProvider) Initialize(ctx context.Context) ([]model.ModelInfo, error) {
	ids, err := p.listModels(ctx)
	if err != nil {
		if IsAuthError(err) {
			return nil, fmt.Errorf("openai probe failed: %w", err)
		}
		config.DebugLog.Printf("[Provider] openai models.list failed, using fallback models: %v", err)
		return modelInfos(p.id, openAIFallbackModels), nil
	}

	chat := filterChatModels(ids)
	if len(chat) == 0 {
		chat = openAIFallbackModels
	}
	config.DebugLog.Printf("[Provider] openai initialized with %d models", len(chat))
	return modelInfos(p.id, chat), nil
}

func filterChatModels(ids []string) []string {
	var out []string
	for _, id := range ids {
		if strings.Contains(id, "gpt-") || strings.Contains(id, "o1-") || strings.Contains(id, "chatgpt") {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
