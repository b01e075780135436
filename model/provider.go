package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts the three chat adapters (Anthropic, OpenAI, W&B).
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the orchestrator
// uses Provider without importing the provider package.
type Provider interface {
	// ID returns the provider id ("anthropic", "openai", "wandb").
	ID() string

	// Initialize performs one authenticated probe and returns the models the
	// provider offers. Bad credentials come back as a *provider.AuthError.
	Initialize(ctx context.Context) ([]ModelInfo, error)

	// StreamTurn streams one completion. Every chunk is delivered through
	// callback, ending with a ChunkStreamEnd. Tools may be empty.
	StreamTurn(ctx context.Context, model string, messages []Message, tools []mcptypes.Tool, callback ChunkCallback) error

	// DefaultModel returns the model used when none was chosen explicitly.
	DefaultModel() string
}

type ChunkKind int

const (
	ChunkTextDelta ChunkKind = iota
	ChunkToolUseStart
	ChunkStreamEnd
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkTextDelta:
		return "text_delta"
	case ChunkToolUseStart:
		return "tool_use_start"
	case ChunkStreamEnd:
		return "stream_end"
	default:
		return "unknown"
	}
}

// ChunkEvent is the normalized stream vocabulary. Text is set for
// ChunkTextDelta and ToolUse for ChunkToolUseStart.
type ChunkEvent struct {
	Kind    ChunkKind
	Text    string
	ToolUse *ToolUseBlock
}

func TextDelta(text string) ChunkEvent {
	return ChunkEvent{Kind: ChunkTextDelta, Text: text}
}

func ToolUseStart(id, name string, input map[string]any) ChunkEvent {
	if input == nil {
		input = map[string]any{}
	}
	return ChunkEvent{Kind: ChunkToolUseStart, ToolUse: &ToolUseBlock{ID: id, Name: name, Input: input}}
}

func StreamEnd() ChunkEvent {
	return ChunkEvent{Kind: ChunkStreamEnd}
}

// ChunkCallback receives stream chunks. Returning an error aborts the stream.
type ChunkCallback func(ChunkEvent) error

type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// RawRecorder receives the wire request and accumulated response of every
// provider call.
type RawRecorder interface {
	RecordRaw(provider, name string, request, response any, err error)
}
