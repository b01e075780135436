// Package provider adapts LLM chat APIs to the model.Provider contract.
//
// Three adapters exist: Anthropic (native content blocks), OpenAI and the
// W&B inference gateway (both OpenAI-compatible, sharing one streaming
// core). Every adapter turns its wire format into the same ChunkEvent
// vocabulary, reassembling streamed tool-call arguments with a
// ToolCallAssembler.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeAnthropic,
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	models, err := p.Initialize(ctx)
//	err = p.StreamTurn(ctx, p.DefaultModel(), history, tools, callback)
package provider

import (
	"time"

	"mcpdesk/model"
)

// The Provider interface itself lives in the model package (model/provider.go)
// so the orchestrator can use it without importing this package.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeWandb     ProviderType = "wandb"
)

// Config holds everything needed to construct one adapter.
type Config struct {
	Type        ProviderType
	BaseURL     string
	APIKey      string
	Project     string // W&B only, "team/project"
	Model       string
	MaxTokens   int64
	Temperature *float64 // nil means config.DefaultTemperature

	// Recorder receives raw request/response pairs. May be nil.
	Recorder model.RawRecorder

	// ProbeBackoff is the fixed delay between probe retries. Zero means
	// the default of one second.
	ProbeBackoff time.Duration
}
