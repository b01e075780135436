package config

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderWandb     = "wandb"
)

// ProviderIDs lists the supported providers in display order.
var ProviderIDs = []string{ProviderAnthropic, ProviderOpenAI, ProviderWandb}

type ProviderSettings struct {
	BaseURL     string   `toml:"base_url,omitempty"`
	Model       string   `toml:"model,omitempty"`
	MaxTokens   int64    `toml:"max_tokens,omitempty"`
	Temperature *float64 `toml:"temperature,omitempty"` // nil means DefaultTemperature; 0 is valid
	Project     string   `toml:"project,omitempty"`     // W&B only, "team/project"
	Disabled    bool     `toml:"disabled,omitempty"`
}

func (s ProviderSettings) withDefaults(providerID string) ProviderSettings {
	if s.BaseURL == "" {
		s.BaseURL = GetProviderDefaultBaseURL(providerID)
	}
	if s.Model == "" {
		s.Model = GetProviderDefaultModel(providerID)
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Temperature == nil {
		t := DefaultTemperature
		s.Temperature = &t
	}
	return s
}

// GetProviderDisplayName returns the display name for a provider
func GetProviderDisplayName(providerID string) string {
	switch providerID {
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderWandb:
		return "W&B Inference"
	default:
		return providerID
	}
}

// GetProviderDefaultBaseURL returns the default base URL for a provider
func GetProviderDefaultBaseURL(providerID string) string {
	switch providerID {
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderWandb:
		return "https://api.inference.wandb.ai/v1"
	default:
		return ""
	}
}

func GetProviderDefaultModel(providerID string) string {
	switch providerID {
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderWandb:
		return "meta-llama/Llama-3.1-8B-Instruct"
	default:
		return ""
	}
}
