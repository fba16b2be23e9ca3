package agent

import (
	"context"
	"fmt"

	"github.com/MimeLyc/beatreel/internal/llm"
	"github.com/MimeLyc/beatreel/internal/tools"
)

// Agent defines the interface for an agent that can execute tasks
type Agent interface {
	// Execute runs the agent with the given request
	Execute(ctx context.Context, req AgentRequest) (*AgentResult, error)

	// Close releases any resources held by the agent
	Close() error
}

// LLMConfig carries the connection settings for the agent's chat backend.
// Any OpenAI-compatible endpoint works; APIURL includes the /v1 segment.
type LLMConfig struct {
	APIKey      string
	APIURL      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     int // seconds
	SiteURL     string
	AppName     string
}

// LLMAgent implements the Agent interface using an LLM with tool calling
type LLMAgent struct {
	client        *llm.Client
	registry      *tools.Registry
	maxIterations int
}

// NewLLMAgent creates a new LLM-based agent
func NewLLMAgent(cfg LLMConfig, registry *tools.Registry, maxIterations int) (*LLMAgent, error) {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120
	}

	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.APIKey,
		APIURL:      cfg.APIURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		SiteURL:     cfg.SiteURL,
		AppName:     cfg.AppName,
	})
	if err != nil {
		return nil, fmt.Errorf("agent LLM client: %w", err)
	}

	return &LLMAgent{
		client:        client,
		registry:      registry,
		maxIterations: maxIterations,
	}, nil
}

// Execute runs the agent with the given request
func (a *LLMAgent) Execute(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	orchestrator := NewOrchestrator(a.client, a.registry, a.getMaxIterations(req))
	return orchestrator.Run(ctx, req)
}

// Close releases any resources held by the agent
func (a *LLMAgent) Close() error {
	// No resources to release currently
	return nil
}

func (a *LLMAgent) getMaxIterations(req AgentRequest) int {
	if req.MaxIterations > 0 {
		return req.MaxIterations
	}
	return a.maxIterations
}
