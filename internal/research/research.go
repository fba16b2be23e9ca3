// Package research gathers a short factual brief on a topic before
// planning. An agent loop with a web_search tool does the digging;
// finished briefs are cached as JSON files keyed by a slug of the
// topic, and a cache hit skips the agent entirely.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/beatreel/internal/agent"
	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/tools"
	"github.com/MimeLyc/beatreel/pkg/file"
	"github.com/MimeLyc/beatreel/pkg/log"
)

const briefSystemPrompt = `You research topics for short animated explainer videos.

Use the web_search tool to gather concrete, verifiable background on the topic before answering. Prefer numbers, dates, names, and primary sources over vague statements.

When you are done researching, respond with ONLY a JSON object in this exact shape:
{"summary": "...", "facts": ["...", "..."]}

- summary: 2-3 plain sentences capturing what the topic is and why it matters.
- facts: 3 to 6 standalone facts, each a single sentence, with figures or dates where you found them.

No markdown, no commentary, only the JSON object.`

// slugLimit keeps cache file names comfortably under filesystem caps.
const slugLimit = 80

// Researcher produces planner briefs. It satisfies the pipeline's
// Researcher interface.
type Researcher struct {
	agent    agent.Agent
	cacheDir string
}

// Option configures a Researcher.
type Option func(*Researcher)

// WithAgent swaps the LLM agent, used by tests.
func WithAgent(a agent.Agent) Option {
	return func(r *Researcher) { r.agent = a }
}

// WithCacheDir overrides where briefs are cached.
func WithCacheDir(dir string) Option {
	return func(r *Researcher) { r.cacheDir = dir }
}

// New builds a Researcher with a web_search tool backed by the
// configured search API.
func New(cfg *config.Config, opts ...Option) (*Researcher, error) {
	r := &Researcher{cacheDir: cfg.BriefCacheDir()}
	for _, opt := range opts {
		opt(r)
	}
	if r.agent != nil {
		return r, nil
	}

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewWebSearchTool(cfg.Search.APIKey, cfg.Search.APIURL)); err != nil {
		return nil, fmt.Errorf("register web_search tool: %w", err)
	}

	llmAgent, err := agent.NewLLMAgent(agent.LLMConfig{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	}, registry, cfg.Agent.MaxIterations)
	if err != nil {
		return nil, err
	}
	r.agent = llmAgent
	return r, nil
}

// Brief returns the rendered brief for a topic, researching it if no
// cached brief exists.
func (r *Researcher) Brief(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", errors.New("empty topic")
	}

	if brief, ok := r.cached(topic); ok {
		log.Debug("Research brief cache hit for %q", topic)
		return brief.Render(), nil
	}

	brief, err := r.investigate(ctx, topic)
	if err != nil {
		return "", err
	}
	if err := r.saveCache(topic, brief); err != nil {
		log.Warn("Research brief cache write failed for %q: %v", topic, err)
	}
	return brief.Render(), nil
}

func (r *Researcher) investigate(ctx context.Context, topic string) (*Brief, error) {
	result, err := r.agent.Execute(ctx, agent.AgentRequest{
		SystemPrompt: briefSystemPrompt,
		UserMessage:  fmt.Sprintf("Research this topic for a 30 second animated explainer video: %s", topic),
	})
	if err != nil {
		return nil, fmt.Errorf("research agent: %w", err)
	}

	brief, err := parseBrief(result.Content)
	if err != nil {
		return nil, fmt.Errorf("research response: %w", err)
	}
	brief.Topic = topic
	brief.CreatedAt = time.Now().UTC()
	log.Info("Research brief for %q: %d facts after %d agent iterations",
		topic, len(brief.Facts), result.Iterations)
	return brief, nil
}

func (r *Researcher) cachePath(topic string) string {
	return filepath.Join(r.cacheDir, file.Slug(topic, slugLimit)+".json")
}

func (r *Researcher) cached(topic string) (*Brief, bool) {
	data, err := os.ReadFile(r.cachePath(topic))
	if err != nil {
		return nil, false
	}
	var brief Brief
	if err := json.Unmarshal(data, &brief); err != nil || strings.TrimSpace(brief.Summary) == "" {
		return nil, false
	}
	return &brief, true
}

func (r *Researcher) saveCache(topic string, brief *Brief) error {
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.cachePath(topic), data, 0o644)
}
