package media

import (
	"context"
	"time"
)

// Operator wraps the external media tools (ffmpeg/ffprobe) behind an
// interface so pipeline stages can run against a test double.
type Operator interface {
	// ProbeDuration reports the container duration of a media file.
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)

	// ConvertToWAV transcodes any audio input to mono WAV.
	ConvertToWAV(ctx context.Context, src, dst string) error

	// FitVideoToAudio produces a clip whose duration equals target:
	// the video is extended by cloning its last frame when shorter and
	// trimmed when longer, then muxed with the audio track. The audio
	// is never altered.
	FitVideoToAudio(ctx context.Context, videoPath, audioPath, outputPath string, target time.Duration) error

	// ConcatClips joins clips losslessly in the given order.
	ConcatClips(ctx context.Context, clipPaths []string, outputPath string) error

	// MakeSlate renders a solid-color clip of the given duration.
	MakeSlate(ctx context.Context, outputPath string, duration time.Duration, color string) error
}

func NewOperator() Operator {
	return NewFfmpeg()
}
