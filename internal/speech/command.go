package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/media"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// commandSynthesizer drives a local say-style TTS binary:
//
//	<command> -v <voice> -r <rate> -o out.aiff <text>
//
// The intermediate file is converted to WAV so downstream muxing sees a
// uniform input regardless of what the binary emits.
type commandSynthesizer struct {
	command  string
	voice    string
	rateWPM  int
	op       media.Operator
	attempts int
	backoff  time.Duration
}

func newCommandSynthesizer(cfg config.SpeechConfig, op media.Operator) *commandSynthesizer {
	return &commandSynthesizer{
		command:  cfg.Command,
		voice:    cfg.Voice,
		rateWPM:  cfg.RateWPM,
		op:       op,
		attempts: 3,
		backoff:  2 * time.Second,
	}
}

func (s *commandSynthesizer) Synthesize(ctx context.Context, text, basePath string) (*Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty narration text")
	}

	cmdPath, err := exec.LookPath(s.command)
	if err != nil {
		return nil, fmt.Errorf("tts command %q not found: %w", s.command, err)
	}

	aiffPath := basePath + ".aiff"
	wavPath := basePath + ".wav"

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			log.Warn("speech attempt %d/%d for %s after: %v",
				attempt, s.attempts, basePath, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * s.backoff):
			}
		}

		if lastErr = s.runCommand(ctx, cmdPath, text, aiffPath); lastErr != nil {
			continue
		}
		if lastErr = s.op.ConvertToWAV(ctx, aiffPath, wavPath); lastErr != nil {
			continue
		}
		os.Remove(aiffPath)

		duration, err := s.op.ProbeDuration(ctx, wavPath)
		if err != nil {
			lastErr = err
			continue
		}
		if duration <= 0 {
			lastErr = fmt.Errorf("synthesized clip %s has zero duration", wavPath)
			continue
		}

		return &Clip{Path: wavPath, Duration: duration}, nil
	}

	return nil, fmt.Errorf("speech synthesis failed after %d attempts: %w",
		s.attempts, lastErr)
}

func (s *commandSynthesizer) runCommand(ctx context.Context, cmdPath, text, outputPath string) error {
	args := []string{
		"-v", s.voice,
		"-r", strconv.Itoa(s.rateWPM),
		"-o", outputPath,
		text,
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", s.command, err,
			strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("%s produced no output: %w", s.command, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s produced an empty file", s.command)
	}
	return nil
}
