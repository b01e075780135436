package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3/option"

	"mcpdesk/config"
	"mcpdesk/model"
)

var wandbFallbackModels = []string{
	"meta-llama/Llama-3.1-8B-Instruct",
	"deepseek-ai/DeepSeek-V2.5",
	"meta-llama/Llama-3.1-70B-Instruct",
}

// WandbProvider talks to the W&B inference gateway, which is OpenAI
// compatible but scopes every request to a team/project.
type WandbProvider struct {
	openAICompatible
	project string
}

func NewWandbProvider(cfg Config) (*WandbProvider, error) {
	id := string(ProviderTypeWandb)
	if cfg.APIKey == "" {
		return nil, &AuthError{Provider: id, Message: "API key is required"}
	}
	if !validProject(cfg.Project) {
		return nil, &AuthError{Provider: id, Message: "project is required (format: team/project)"}
	}

	return &WandbProvider{
		openAICompatible: newOpenAICompatible(id, cfg, option.WithHeader("OpenAI-Project", cfg.Project)),
		project:          cfg.Project,
	}, nil
}

func validProject(project string) bool {
	team, name, ok := strings.Cut(project, "/")
	return ok && team != "" && name != "" && !strings.Contains(name, "/")
}

// Initialize probes with models.list. Rejections that mention the project
// get a project-specific message; other failures fall back to a fixed list.
func (p *WandbProvider) Initialize(ctx context.Context) ([]model.ModelInfo, error) {
	ids, err := p.listModels(ctx)
	if err != nil {
		if IsAuthError(err) {
			if strings.Contains(strings.ToLower(err.Error()), "project") {
				return nil, &AuthError{
					Provider: p.id,
					Message:  fmt.Sprintf("API key or project %q rejected, check the team/project name", p.project),
					Err:      err,
				}
			}
			return nil, fmt.Errorf("wandb probe failed: %w", err)
		}
		config.DebugLog.Printf("[Provider] wandb models.list failed, using fallback models: %v", err)
		return modelInfos(p.id, wandbFallbackModels), nil
	}

	if len(ids) == 0 {
		ids = wandbFallbackModels
	}
	config.DebugLog.Printf("[Provider] wandb initialized with %d models", len(ids))
	return modelInfos(p.id, ids), nil
}
