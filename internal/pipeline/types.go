package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/MimeLyc/beatreel/internal/planner"
)

// Stage names the phase a run is in. The progression is
// planning -> synthesizing -> rendering -> assembling -> done,
// ending in failed or cancelled instead when the run does not finish.
type Stage string

const (
	StagePlanning     Stage = "planning"
	StageSynthesizing Stage = "synthesizing"
	StageRendering    Stage = "rendering"
	StageAssembling   Stage = "assembling"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
	StageCancelled    Stage = "cancelled"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// Well-known artifact names inside a run directory.
const (
	StoryboardName = "storyboard.json"
	ManifestName   = "manifest.json"
	FinalName      = "final.mp4"
	CaptionsName   = "captions.srt"
	RunLogName     = "run.log"
)

// RunRequest asks for one topic-to-video run.
//
// ID doubles as the run directory name and the checkpoint key; when a
// queue job drives the run it is the job ID, so a re-enqueued topic
// resumes from its own checkpoints. An empty ID gets a fresh UUID.
// Theme and Voice are optional overrides of the configured defaults.
type RunRequest struct {
	ID    string
	Topic string
	Theme string
	Voice string
}

// BeatResult is the finished artifact pair for one storyboard beat.
type BeatResult struct {
	Index        int
	Title        string
	Narration    string
	VisualPrompt string
	AudioPath    string
	Duration     time.Duration
	VideoPath    string
	TaskID       string
	Placeholder  bool
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID        string
	Dir          string
	FinalPath    string
	CaptionsPath string
	Storyboard   *planner.Storyboard
	Beats        []BeatResult
	Elapsed      time.Duration
}

// ProgressEvent is one progress update, published after every stage
// transition and after each beat finishes a phase. Percent is
// monotonic within a run. Beat is zero for run-level events.
type ProgressEvent struct {
	RunID   string    `json:"run_id"`
	Stage   Stage     `json:"stage"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
	Beat    int       `json:"beat,omitempty"`
	At      time.Time `json:"at"`
}

// ProgressFunc receives progress events. Implementations must not
// block; beat goroutines publish from inside the render fan-out.
type ProgressFunc func(ProgressEvent)

// Manifest is the run summary written next to the final video. The
// library scanner and the run detail endpoint read it back, so file
// references are relative to the run directory.
type Manifest struct {
	RunID        string         `json:"run_id"`
	Topic        string         `json:"topic"`
	Theme        string         `json:"theme,omitempty"`
	FinalFile    string         `json:"final_file"`
	CaptionsFile string         `json:"captions_file,omitempty"`
	Beats        []ManifestBeat `json:"beats"`
	CreatedAt    time.Time      `json:"created_at"`
	ElapsedMS    int64          `json:"elapsed_ms"`
}

// ManifestBeat mirrors BeatResult with paths relativized and the
// duration flattened to milliseconds.
type ManifestBeat struct {
	Index        int    `json:"index"`
	Title        string `json:"title"`
	Narration    string `json:"narration"`
	VisualPrompt string `json:"visual_prompt"`
	AudioFile    string `json:"audio_file"`
	VideoFile    string `json:"video_file"`
	DurationMS   int64  `json:"duration_ms"`
	TaskID       string `json:"task_id,omitempty"`
	Placeholder  bool   `json:"placeholder,omitempty"`
}

// WriteManifest writes the manifest into dir.
func WriteManifest(dir string, m *Manifest) error {
	return writeJSONFile(filepath.Join(dir, ManifestName), m)
}

// ReadManifest loads the manifest from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
