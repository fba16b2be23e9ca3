// Package assemble joins per-beat narration and scene clips into the
// final continuous video.
package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/MimeLyc/beatreel/internal/media"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// Pair is one beat's narration clip and scene clip. Duration is the
// measured narration duration, which the synced clip must match.
type Pair struct {
	Index     int
	AudioPath string
	VideoPath string
	Duration  time.Duration
}

// Assembler builds one video from per-beat pairs.
type Assembler interface {
	Assemble(ctx context.Context, pairs []Pair, workDir, outputPath string) error
}

type assembler struct {
	op media.Operator
}

func New(op media.Operator) Assembler {
	return &assembler{op: op}
}

// Assemble syncs every pair to its narration duration and concatenates
// the results in beat order. Completion order of upstream stages does
// not matter; pairs are sorted by index here.
func (a *assembler) Assemble(ctx context.Context, pairs []Pair, workDir, outputPath string) error {
	if len(pairs) == 0 {
		return fmt.Errorf("nothing to assemble")
	}

	ordered := make([]Pair, len(pairs))
	copy(ordered, pairs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Index == ordered[i-1].Index {
			return fmt.Errorf("duplicate beat index %d", ordered[i].Index)
		}
	}

	synced := make([]string, 0, len(ordered))
	for _, pair := range ordered {
		if err := checkInput(pair.VideoPath); err != nil {
			return err
		}
		if err := checkInput(pair.AudioPath); err != nil {
			return err
		}
		if pair.Duration <= 0 {
			return fmt.Errorf("beat %d has no narration duration", pair.Index)
		}

		out := filepath.Join(workDir, fmt.Sprintf("synced_%d.mp4", pair.Index))
		log.Debug("syncing beat %d to %s", pair.Index, pair.Duration)
		if err := a.op.FitVideoToAudio(ctx, pair.VideoPath, pair.AudioPath, out, pair.Duration); err != nil {
			return fmt.Errorf("failed to sync beat %d: %w", pair.Index, err)
		}
		synced = append(synced, out)
	}

	if err := a.op.ConcatClips(ctx, synced, outputPath); err != nil {
		return fmt.Errorf("failed to concatenate clips: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("final video missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("final video %s is empty", outputPath)
	}

	log.Info("assembled %d beats into %s (%d bytes)", len(ordered), outputPath, info.Size())
	return nil
}

func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input clip unreadable: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("input clip %s is empty", path)
	}
	return nil
}
