package provider

import (
	"fmt"

	"mcpdesk/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an *AuthError when required credentials are missing and a plain
// error for an unknown provider type.
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderTypeWandb:
		return NewWandbProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider id to its ProviderType.
// Unknown ids are passed through and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "anthropic":
		return ProviderTypeAnthropic
	case "openai":
		return ProviderTypeOpenAI
	case "wandb":
		return ProviderTypeWandb
	default:
		return ProviderType(id)
	}
}
