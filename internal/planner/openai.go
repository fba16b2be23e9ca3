package planner

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/llm"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// planAttempts bounds the corrective conversation with the model.
const planAttempts = 3

// openaiPlanner plans through any OpenAI-compatible chat endpoint,
// reusing the shared llm client and its conversation history for
// corrective retries.
type openaiPlanner struct {
	client *llm.Client
	lang   language.Tag
}

func newOpenAIPlanner(cfg *config.Config) (Planner, error) {
	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return &openaiPlanner{client: client, lang: cfg.Speech.Language}, nil
}

// Plan asks for the storyboard and, when a response fails to parse or
// validate, pushes the problem back into the same conversation as a
// corrective turn. The model sees its own bad output, which repairs
// far more reliably than a fresh request.
func (p *openaiPlanner) Plan(ctx context.Context, req Request) (*Storyboard, error) {
	conv := llm.NewConversation(p.client, buildPlannerPrompt(req, p.lang), 0)
	opts := llm.NewChatCompletionOptions().WithJSONOnly(true)

	message := buildUserMessage(req.Topic)

	var lastErr error
	for attempt := 1; attempt <= planAttempts; attempt++ {
		content, err := conv.SendMessageWithOptions(ctx, message, opts)
		if err != nil {
			return nil, fmt.Errorf("planner request failed: %w", err)
		}

		beats, err := acceptBeats(content, p.lang)
		if err != nil {
			lastErr = err
			log.Warn("Planner attempt %d/%d rejected: %v", attempt, planAttempts, err)
			message = buildCorrectiveMessage(err)
			continue
		}

		normalizeBeats(ctx, beats, p.rewrite)
		return finishStoryboard(req, beats), nil
	}

	return nil, fmt.Errorf("no valid storyboard after %d attempts: %w", planAttempts, lastErr)
}

// rewrite trims or expands a single narration through a one-shot chat,
// outside the planning conversation so the retry history stays clean.
func (p *openaiPlanner) rewrite(ctx context.Context, narration string) (string, error) {
	return p.client.SimpleChat(ctx, buildRewriteMessage(narration, p.lang), "")
}

// acceptBeats runs the shared parse and validation gauntlet on one
// model response.
func acceptBeats(content string, lang language.Tag) ([]Beat, error) {
	beats, err := parseBeatsResponse(content)
	if err != nil {
		return nil, err
	}
	if err := validateBeats(beats); err != nil {
		return nil, err
	}
	if err := checkLanguage(beats, lang); err != nil {
		return nil, err
	}
	return beats, nil
}

// finishStoryboard stamps the theme identity onto every visual prompt
// and assembles the final storyboard.
func finishStoryboard(req Request, beats []Beat) *Storyboard {
	board := &Storyboard{Topic: req.Topic, Beats: beats}
	if req.Theme != nil {
		board.Theme = req.Theme.ID
		for i := range board.Beats {
			board.Beats[i].VisualPrompt = req.Theme.DecoratePrompt(board.Beats[i].VisualPrompt)
		}
	}
	return board
}
