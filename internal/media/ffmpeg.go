package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/beatreel/pkg/log"
)

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
}

func NewFfmpeg() ffmpeg {
	return ffmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
	}
}

// ProbeDuration reads the container duration via ffprobe's JSON output.
func (ff ffmpeg) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return 0, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, ff.probeDurationArgs(path)...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", path, err)
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("no duration in probe of %s", path)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// ConvertToWAV transcodes src to mono 44.1kHz WAV.
func (ff ffmpeg) ConvertToWAV(ctx context.Context, src, dst string) error {
	return ff.run(ctx, ff.convertToWAVArgs(src, dst))
}

// FitVideoToAudio re-encodes the video to exactly the target duration
// (last-frame hold via tpad, trim via -t) and muxes the audio on top.
// Uses a temporary intermediate next to the output.
func (ff ffmpeg) FitVideoToAudio(ctx context.Context, videoPath, audioPath, outputPath string, target time.Duration) error {
	fitted := filepath.Join(filepath.Dir(outputPath),
		".fit_"+filepath.Base(outputPath))
	defer os.Remove(fitted)

	if err := ff.run(ctx, ff.fitVideoArgs(videoPath, fitted, target)); err != nil {
		return fmt.Errorf("fit video to %s: %w", target, err)
	}
	if err := ff.run(ctx, ff.muxArgs(fitted, audioPath, outputPath)); err != nil {
		return fmt.Errorf("mux audio: %w", err)
	}
	return nil
}

// ConcatClips joins clips with the concat demuxer, stream-copied so
// per-clip encodes are preserved bit for bit.
func (ff ffmpeg) ConcatClips(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(filepath.Dir(outputPath),
		".concat_"+filepath.Base(outputPath)+".txt")
	defer os.Remove(listPath)

	list, err := buildConcatList(clipPaths)
	if err != nil {
		return err
	}
	if err := os.WriteFile(listPath, []byte(list), 0644); err != nil {
		return err
	}

	return ff.run(ctx, ff.concatArgs(listPath, outputPath))
}

// MakeSlate renders a solid-color placeholder clip.
func (ff ffmpeg) MakeSlate(ctx context.Context, outputPath string, duration time.Duration, color string) error {
	if color == "" {
		color = "0x202833"
	}
	return ff.run(ctx, ff.slateArgs(outputPath, duration, color))
}

// run executes ffmpeg with the given args, folding the stderr tail into
// the returned error.
func (ff ffmpeg) run(ctx context.Context, args []string) error {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("ffmpeg failed: %v: %s", err, tail(output, 400))
		return fmt.Errorf("ffmpeg %s: %w: %s",
			strings.Join(args[:min(4, len(args))], " "), err, tail(output, 400))
	}
	return nil
}

func (ffmpeg) probeDurationArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}
}

func (ffmpeg) convertToWAVArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-ar", "44100",
		"-ac", "1",
		dst,
	}
}

func (ffmpeg) fitVideoArgs(videoPath, outputPath string, target time.Duration) []string {
	seconds := target.Seconds()
	return []string{
		"-y",
		"-i", videoPath,
		// Pad by the full target so even a very short clip ends up long
		// enough, then trim to the exact length.
		"-vf", fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%.3f", seconds),
		"-t", fmt.Sprintf("%.3f", seconds),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	}
}

func (ffmpeg) muxArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outputPath,
	}
}

func (ffmpeg) concatArgs(listPath, outputPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
}

func (ffmpeg) slateArgs(outputPath string, duration time.Duration, color string) []string {
	return []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=960x540:d=%.3f:r=24", color, duration.Seconds()),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	}
}

// buildConcatList renders the concat demuxer input list, one clip per
// line in playback order, with single quotes escaped.
func buildConcatList(clipPaths []string) (string, error) {
	var list strings.Builder
	for _, clip := range clipPaths {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return "", err
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&list, "file '%s'\n", escaped)
	}
	return list.String(), nil
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
