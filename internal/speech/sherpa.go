package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/media"
)

// sherpaSynthesizer talks to a local sherpa-onnx HTTP server.
//
// POST {base}/generate {"text","language","voice"} returns a base64
// encoded WAV in "audio_base64", or "error" when synthesis failed.
type sherpaSynthesizer struct {
	baseURL    string
	voice      string
	language   string
	httpClient *http.Client
	op         media.Operator
}

type sherpaRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice,omitempty"`
}

type sherpaResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
}

func newSherpaSynthesizer(cfg config.SpeechConfig, op media.Operator) *sherpaSynthesizer {
	lang, _ := cfg.Language.Base()
	return &sherpaSynthesizer{
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		voice:    cfg.Voice,
		language: lang.String(),
		op:       op,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *sherpaSynthesizer) Synthesize(ctx context.Context, text, basePath string) (*Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty narration text")
	}

	payload, err := json.Marshal(sherpaRequest{
		Text:     text,
		Language: s.language,
		Voice:    s.voice,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}

	var generated sherpaResponse
	if err := json.Unmarshal(body, &generated); err != nil {
		return nil, fmt.Errorf("parse tts response: %w", err)
	}
	if generated.Error != "" {
		return nil, fmt.Errorf("tts server error: %s", generated.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts server returned status %d", resp.StatusCode)
	}

	audio, err := base64.StdEncoding.DecodeString(generated.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts server returned empty audio")
	}

	wavPath := basePath + ".wav"
	if err := os.WriteFile(wavPath, audio, 0644); err != nil {
		return nil, err
	}

	duration, err := s.op.ProbeDuration(ctx, wavPath)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("synthesized clip %s has zero duration", wavPath)
	}

	return &Clip{Path: wavPath, Duration: duration}, nil
}
