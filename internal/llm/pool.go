package llm

import (
	"context"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/api"

	"github.com/duskline/crosstalk/internal/config"
)

// Persona pairs a cast member's name with the system prompt its
// runtime is created with.
type Persona struct {
	Name   string
	System string
}

// Pool holds one runtime per cast member.
type Pool struct {
	runtimes map[string]Runtime
}

// NewPool creates a runtime for every persona. A nil factory uses the
// default agentsdk-go runtime.
func NewPool(cfg *config.Config, factory RuntimeFactory, personas []Persona) (*Pool, error) {
	if factory == nil {
		factory = DefaultRuntimeFactory
	}

	pool := &Pool{runtimes: make(map[string]Runtime, len(personas))}
	for _, persona := range personas {
		rt, err := factory(cfg, persona.System)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("create runtime for %s: %w", persona.Name, err)
		}
		pool.runtimes[persona.Name] = rt
	}
	return pool, nil
}

// Generate runs one completion on the named member's runtime. The
// session ID keeps that member's exchanges in a single thread.
func (p *Pool) Generate(ctx context.Context, name, prompt, sessionID string) (string, error) {
	rt, ok := p.runtimes[name]
	if !ok {
		return "", fmt.Errorf("no runtime for %q", name)
	}

	resp, err := rt.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Result == nil {
		return "", nil
	}
	return resp.Result.Output, nil
}

// Close shuts down every runtime. The runtimes map is never mutated
// after NewPool, so a straggling background generation racing Close
// still reads it safely.
func (p *Pool) Close() {
	for _, rt := range p.runtimes {
		rt.Close()
	}
}
