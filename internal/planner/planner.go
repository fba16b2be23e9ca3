// Package planner turns a topic into the four narrative beats that
// drive the rest of the pipeline. Providers share the prompt, parsing
// and normalization logic and differ only in how they reach the model.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/themes"
)

// BeatCount is the fixed storyboard length. Every run has exactly
// four beats; the assembler and checkpoint schema rely on it.
const BeatCount = 4

// Beat is one storyboard element. All fields are non-empty once the
// planner returns.
type Beat struct {
	Title        string `json:"title"`
	Narration    string `json:"narration"`
	VisualPrompt string `json:"visual_prompt"`
}

// Storyboard is the planner's output: the topic, the theme applied
// (empty when theming is off) and the beats in playback order.
type Storyboard struct {
	Topic string `json:"topic"`
	Theme string `json:"theme,omitempty"`
	Beats []Beat `json:"beats"`
}

// Request carries everything the planner needs for one run.
//
// Brief is optional pre-rendered research notes folded into the system
// prompt; Theme is optional and locks a visual identity into every
// beat's visual prompt.
type Request struct {
	Topic string
	Theme *themes.Theme
	Brief string
}

// Planner produces a storyboard for a topic.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Storyboard, error)
}

// New selects the provider configured by LLM_PROVIDER.
func New(cfg *config.Config) (Planner, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		return newGeminiPlanner(cfg)
	case config.ProviderOpenAI:
		return newOpenAIPlanner(cfg)
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.LLM.Provider)
	}
}

// validateBeats checks the parsed beats for count and emptiness.
// The returned error is phrased for the corrective follow-up message.
func validateBeats(beats []Beat) error {
	if len(beats) != BeatCount {
		return fmt.Errorf("expected exactly %d beats, got %d", BeatCount, len(beats))
	}
	for i, beat := range beats {
		if strings.TrimSpace(beat.Title) == "" {
			return fmt.Errorf("beat %d has an empty title", i+1)
		}
		if strings.TrimSpace(beat.Narration) == "" {
			return fmt.Errorf("beat %d has an empty narration", i+1)
		}
		if strings.TrimSpace(beat.VisualPrompt) == "" {
			return fmt.Errorf("beat %d has an empty visual_prompt", i+1)
		}
	}
	return nil
}
