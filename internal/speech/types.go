package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/media"
)

// Clip is a synthesized narration audio file and its measured duration.
// The duration comes from probing the written file, not from the
// engine's own accounting, so it is what the assembler will see.
type Clip struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

// Synthesizer turns narration text into an audio clip.
//
// basePath is the destination path without extension; the engine
// appends its native extension and returns the final path in the Clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, basePath string) (*Clip, error)
}

// NewSynthesizer selects an engine from the configuration.
func NewSynthesizer(cfg config.SpeechConfig, op media.Operator) (Synthesizer, error) {
	switch cfg.Engine {
	case config.EngineCommand:
		return newCommandSynthesizer(cfg, op), nil
	case config.EngineSherpa:
		return newSherpaSynthesizer(cfg, op), nil
	case config.EngineOpenAI:
		return newOpenAISynthesizer(cfg, op), nil
	default:
		return nil, fmt.Errorf("unknown speech engine %q", cfg.Engine)
	}
}
