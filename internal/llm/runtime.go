// Package llm owns the model runtimes. Each cast member runs on a
// dedicated runtime carrying that member's system prompt, so the two
// hosts never share generation state.
package llm

import (
	"context"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/duskline/crosstalk/internal/config"
)

// Dialogue turns are single completions, no tool loop.
const maxIterations = 1

// Runtime interface for the agent runtime (allows mocking in tests).
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime.
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime for one cast member.
type RuntimeFactory func(cfg *config.Config, systemPrompt string) (Runtime, error)

// DefaultRuntimeFactory creates the default agentsdk-go runtime.
func DefaultRuntimeFactory(cfg *config.Config, systemPrompt string) (Runtime, error) {
	temperature := cfg.Model.Temperature

	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			ModelName:   cfg.Model.Name,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: &temperature,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			ModelName:   cfg.Model.Name,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: &temperature,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:   cfg.Workspace,
		ModelFactory:  provider,
		SystemPrompt:  systemPrompt,
		MaxIterations: maxIterations,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}
