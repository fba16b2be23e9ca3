package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/media"
)

// openAISynthesizer uses an OpenAI-compatible /audio/speech endpoint.
type openAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
	op     media.Operator
}

func newOpenAISynthesizer(cfg config.SpeechConfig, op media.Operator) *openAISynthesizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.APIURL, "/")
	}
	return &openAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		voice:  cfg.Voice,
		op:     op,
	}
}

func (s *openAISynthesizer) Synthesize(ctx context.Context, text, basePath string) (*Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty narration text")
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	mp3Path := basePath + ".mp3"
	out, err := os.Create(mp3Path)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(out, resp); err != nil {
		out.Close()
		return nil, fmt.Errorf("write speech audio: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	info, err := os.Stat(mp3Path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("speech endpoint returned empty audio")
	}

	duration, err := s.op.ProbeDuration(ctx, mp3Path)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("synthesized clip %s has zero duration", mp3Path)
	}

	return &Clip{Path: mp3Path, Duration: duration}, nil
}
