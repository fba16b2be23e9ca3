package planner

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// geminiPlanner plans through the Gemini SDK. Gemini has no server-side
// conversation state in the plain GenerateContent call, so corrective
// retries replay the prior bad response inside the next prompt.
type geminiPlanner struct {
	apiKey string
	model  string
	lang   language.Tag
}

func newGeminiPlanner(cfg *config.Config) (Planner, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	return &geminiPlanner{
		apiKey: cfg.Gemini.APIKey,
		model:  cfg.Gemini.Model,
		lang:   cfg.Speech.Language,
	}, nil
}

func (p *geminiPlanner) Plan(ctx context.Context, req Request) (*Storyboard, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	// JSON response mode removes most of the fence and prose slop the
	// parser otherwise has to strip.
	model := client.GenerativeModel(p.model)
	model.ResponseMIMEType = "application/json"

	// Rewrites want plain narration text, not a JSON document.
	rewriteModel := client.GenerativeModel(p.model)
	rewrite := func(ctx context.Context, narration string) (string, error) {
		return generateText(ctx, rewriteModel, buildRewriteMessage(narration, p.lang))
	}

	prompt := buildPlannerPrompt(req, p.lang) + "\n" + buildUserMessage(req.Topic)

	var lastErr error
	for attempt := 1; attempt <= planAttempts; attempt++ {
		content, err := generateText(ctx, model, prompt)
		if err != nil {
			return nil, fmt.Errorf("gemini request failed: %w", err)
		}

		beats, err := acceptBeats(content, p.lang)
		if err != nil {
			lastErr = err
			log.Warn("Planner attempt %d/%d rejected: %v", attempt, planAttempts, err)
			prompt += "\n\nYour previous response was:\n" + content + "\n\n" + buildCorrectiveMessage(err)
			continue
		}

		normalizeBeats(ctx, beats, rewrite)
		return finishStoryboard(req, beats), nil
	}

	return nil, fmt.Errorf("no valid storyboard after %d attempts: %w", planAttempts, lastErr)
}

// generateText runs one GenerateContent call and extracts the first
// text part.
func generateText(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response, possibly blocked by a safety filter")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected part type %T in response", resp.Candidates[0].Content.Parts[0])
	}
	return string(text), nil
}
