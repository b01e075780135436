package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpdesk/config"
	"mcpdesk/mcp"
	"mcpdesk/model"
)

// anthropicModels is the curated list returned by Initialize. The probe
// only proves the key works; Anthropic's model list is not consulted.
var anthropicModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-sonnet-4-5-20250929",
	"claude-3-opus-20240229",
	"claude-3-haiku-20240307",
}

// AnthropicProvider streams through the Messages API, keeping tool use and
// tool results as native content blocks.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
	temperature  float64
	recorder     model.RawRecorder
	probeBackoff time.Duration
}

// NewAnthropicProvider creates the adapter. A missing API key is an
// AuthError so the caller can ask for credentials.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, &AuthError{Provider: string(ProviderTypeAnthropic), Message: "API key is required"}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.GetProviderDefaultBaseURL(config.ProviderAnthropic)
	}
	defaultModel := cfg.Model
	if defaultModel == "" {
		defaultModel = config.GetProviderDefaultModel(config.ProviderAnthropic)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicProvider{
		client:       client,
		defaultModel: defaultModel,
		maxTokens:    orDefaultTokens(cfg.MaxTokens),
		temperature:  orDefaultTemperature(cfg.Temperature),
		recorder:     cfg.Recorder,
		probeBackoff: probeBackoff(cfg),
	}, nil
}

func (p *AnthropicProvider) ID() string {
	return string(ProviderTypeAnthropic)
}

func (p *AnthropicProvider) DefaultModel() string {
	return p.defaultModel
}

// Initialize sends a one-token request to validate the key. Overload
// responses are retried with a fixed backoff.
func (p *AnthropicProvider) Initialize(ctx context.Context) ([]model.ModelInfo, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	}

	err := retryTransient(ctx, p.ID(), probeAttempts, p.probeBackoff, func(ctx context.Context) error {
		_, err := p.client.Messages.New(ctx, params, option.WithMaxRetries(0))
		return classifyError(p.ID(), err)
	})
	recordRaw(p.recorder, p.ID(), "probe", params, nil, err)
	if err != nil {
		return nil, fmt.Errorf("anthropic probe failed: %w", err)
	}

	config.DebugLog.Printf("[Provider] anthropic initialized")
	return modelInfos(p.ID(), anthropicModels), nil
}

// StreamTurn streams one Messages call. Tool arguments arrive as
// input_json_delta fragments per content block and are reassembled before
// a ToolUseStart is emitted.
func (p *AnthropicProvider) StreamTurn(ctx context.Context, modelID string, messages []model.Message, tools []mcptypes.Tool, callback model.ChunkCallback) error {
	if modelID == "" {
		modelID = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
	}
	switch {
	case len(tools) > 0:
		params.Messages = ConvertToAnthropicMessages(messages)
		params.Tools = mcp.ConvertMCPToolsToAnthropicFormat(tools)
	case hasToolBlocks(messages):
		params.Messages = ConvertToAnthropicTextMessages(messages)
	default:
		params.Messages = ConvertToAnthropicMessages(messages)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	assembler := NewToolCallAssembler(p.ID())
	var callbackErr error

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			config.DebugLog.Printf("[Provider] anthropic accumulate: %v", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if toolUse, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				assembler.Begin(int(ev.Index), toolUse.ID, toolUse.Name)
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					callbackErr = callback(model.TextDelta(delta.Text))
				}
			case anthropic.InputJSONDelta:
				if block := assembler.Append(int(ev.Index), delta.PartialJSON); block != nil {
					callbackErr = emitToolUse(callback, block)
				}
			}
		case anthropic.ContentBlockStopEvent:
			if block := assembler.Finish(int(ev.Index)); block != nil {
				callbackErr = emitToolUse(callback, block)
			}
		}

		if callbackErr != nil {
			break
		}
	}

	streamErr := classifyError(p.ID(), stream.Err())
	if callbackErr == nil && streamErr == nil {
		for _, block := range assembler.FinishAll() {
			if callbackErr = emitToolUse(callback, &block); callbackErr != nil {
				break
			}
		}
	}

	recordRaw(p.recorder, p.ID(), "messages.stream", params, rawResponse(msg, assembler.Abandoned()), firstErr(callbackErr, streamErr))

	if callbackErr != nil {
		return callbackErr
	}
	if streamErr != nil {
		return fmt.Errorf("anthropic streaming error: %w", streamErr)
	}
	return callback(model.StreamEnd())
}
