package provider

import (
	"fmt"

	"mcpdesk/config"
	"mcpdesk/model"
)

// Factory builds an adapter by provider id. The orchestrator calls it on
// every connect so credentials supplied later are picked up.
type Factory func(providerID string) (model.Provider, error)

// NewFactory returns a Factory that reads provider settings from cfg and
// credentials from cfg.Credentials at call time.
func NewFactory(cfg *config.Config, recorder model.RawRecorder) Factory {
	return func(providerID string) (model.Provider, error) {
		pc, err := ConfigFor(cfg, providerID)
		if err != nil {
			return nil, err
		}
		pc.Recorder = recorder

		p, err := NewProvider(pc)
		if err != nil {
			config.DebugLog.Printf("[Provider] %s not created: %v", providerID, err)
			return nil, err
		}
		config.DebugLog.Printf("[Provider] created provider: %s (model: %s)", providerID, p.DefaultModel())
		return p, nil
	}
}

// ConfigFor assembles the adapter Config for one provider id.
func ConfigFor(cfg *config.Config, providerID string) (Config, error) {
	settings := cfg.Provider(providerID)
	if settings.Disabled {
		return Config{}, fmt.Errorf("provider %s is disabled", providerID)
	}

	var creds config.Credentials
	if cfg.Credentials != nil {
		creds, _ = cfg.Credentials.Get(providerID)
	}
	project := creds.Project
	if project == "" {
		project = settings.Project
	}

	return Config{
		Type:        MapProviderIDToType(providerID),
		BaseURL:     settings.BaseURL,
		APIKey:      creds.APIKey,
		Project:     project,
		Model:       settings.Model,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
	}, nil
}

// EnabledProviders lists the provider ids not disabled in config, in
// display order.
func EnabledProviders(cfg *config.Config) []string {
	var ids []string
	for _, id := range config.ProviderIDs {
		if !cfg.Provider(id).Disabled {
			ids = append(ids, id)
		}
	}
	return ids
}
