// Package pipeline orchestrates one topic-to-video run: plan four
// beats, synthesize narration and render a scene clip per beat, then
// assemble the pairs into the final video with captions and a
// manifest. Beats run concurrently; checkpoints make re-runs resume
// instead of redoing finished work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/beatreel/internal/assemble"
	"github.com/MimeLyc/beatreel/internal/captions"
	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/imaging"
	"github.com/MimeLyc/beatreel/internal/media"
	"github.com/MimeLyc/beatreel/internal/planner"
	"github.com/MimeLyc/beatreel/internal/render"
	"github.com/MimeLyc/beatreel/internal/speech"
	"github.com/MimeLyc/beatreel/internal/themes"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// Researcher produces a short factual brief for a topic. It is
// optional; a nil researcher skips the step and a failing one only
// costs the planner its notes.
type Researcher interface {
	Brief(ctx context.Context, topic string) (string, error)
}

// Service runs the full pipeline. Collaborators default to the real
// implementations built from the configuration; options swap them out.
type Service struct {
	cfg       *config.Config
	planner   planner.Planner
	synth     speech.Synthesizer
	renderer  render.Renderer
	assembler assemble.Assembler
	op        media.Operator
	themes    *themes.Registry
	research  Researcher
	store     CheckpointStore
	progress  ProgressFunc

	synthInjected bool
}

// Option configures a Service.
type Option func(*Service)

func WithPlanner(p planner.Planner) Option {
	return func(s *Service) { s.planner = p }
}

// WithSynthesizer pins the synthesizer; per-run voice overrides are
// ignored when one is injected.
func WithSynthesizer(synth speech.Synthesizer) Option {
	return func(s *Service) {
		s.synth = synth
		s.synthInjected = true
	}
}

func WithRenderer(r render.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

func WithAssembler(a assemble.Assembler) Option {
	return func(s *Service) { s.assembler = a }
}

func WithOperator(op media.Operator) Option {
	return func(s *Service) { s.op = op }
}

func WithThemes(reg *themes.Registry) Option {
	return func(s *Service) { s.themes = reg }
}

func WithResearcher(r Researcher) Option {
	return func(s *Service) { s.research = r }
}

func WithCheckpointStore(store CheckpointStore) Option {
	return func(s *Service) { s.store = store }
}

func WithProgress(fn ProgressFunc) Option {
	return func(s *Service) { s.progress = fn }
}

// NewService builds a Service from the configuration. Options are
// applied first so injected collaborators skip their real setup and
// its configuration requirements.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.op == nil {
		s.op = media.NewOperator()
	}
	if s.planner == nil {
		p, err := planner.New(cfg)
		if err != nil {
			return nil, WrapError(err, ErrConfiguration, "planner setup failed")
		}
		s.planner = p
	}
	if s.synth == nil {
		synth, err := speech.NewSynthesizer(cfg.Speech, s.op)
		if err != nil {
			return nil, WrapError(err, ErrConfiguration, "synthesizer setup failed")
		}
		s.synth = synth
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer(cfg.Render)
	}
	if s.assembler == nil {
		s.assembler = assemble.New(s.op)
	}
	if s.themes == nil {
		reg, err := themes.Load(cfg.Pipeline.ThemesFile)
		if err != nil {
			return nil, WrapError(err, ErrConfiguration, "theme pack load failed")
		}
		s.themes = reg
	}
	return s, nil
}

// Run executes one topic-to-video run and returns the produced
// artifacts. The run directory is cfg runs dir joined with the run ID
// and survives failures, so a retry under the same ID resumes from
// whatever checkpoints verified.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	started := time.Now()

	if strings.TrimSpace(req.Topic) == "" {
		return nil, NewError(ErrConfiguration, "topic is empty")
	}
	runID := req.ID
	if runID == "" {
		runID = uuid.NewString()
	}

	runDir := filepath.Join(s.cfg.RunsDir(), runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, WrapError(err, ErrInternal, "create run directory").WithContext("run_id", runID)
	}

	// Run-scoped log inside the run directory; the global logger
	// stands in when the file cannot be opened.
	rlog := log.GetLogger()
	fileLog, err := log.NewFileLogger(filepath.Join(runDir, RunLogName), log.ParseLevel(s.cfg.System.LogLevel))
	if err != nil {
		log.Warn("Run %s: run.log unavailable: %v", runID, err)
	} else {
		defer fileLog.Close()
		rlog = fileLog.Logger
	}

	tr := newTracker(runID, s.progress)
	log.Info("Run %s started: topic=%q theme=%q", runID, req.Topic, req.Theme)
	rlog.Info("Run %s started: topic=%q theme=%q voice=%q", runID, req.Topic, req.Theme, req.Voice)
	tr.planning(req.Topic)

	themeID := req.Theme
	if themeID == "" {
		themeID = s.cfg.Pipeline.Theme
	}
	theme, err := s.themes.Select(themeID)
	if err != nil {
		return s.fail(tr, rlog, WrapError(err, ErrConfiguration, "theme selection failed").WithContext("theme", themeID))
	}

	referenceImage := s.prepareReferenceImage(theme, rlog)
	brief := s.researchBrief(ctx, req.Topic, rlog)

	board, err := s.planner.Plan(ctx, planner.Request{Topic: req.Topic, Theme: theme, Brief: brief})
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(tr, rlog, NewErrorWithCause(ErrCancelled, "run cancelled during planning", ctx.Err()))
		}
		return s.fail(tr, rlog, WrapError(err, ErrPlanning, "storyboard planning failed").WithContext("topic", req.Topic))
	}
	if err := writeJSONFile(filepath.Join(runDir, StoryboardName), board); err != nil {
		return s.fail(tr, rlog, WrapError(err, ErrInternal, "write storyboard"))
	}
	rlog.Info("Storyboard ready: %d beats", len(board.Beats))
	tr.planned(len(board.Beats))

	checkpoints, err := loadBeatCheckpoints(ctx, s.store, runID)
	if err != nil {
		rlog.Warn("Checkpoint load failed, starting clean: %v", err)
	}

	voice := req.Voice
	if voice == "" && theme != nil {
		voice = theme.NarratorHint
	}
	synth, err := s.synthesizerFor(voice)
	if err != nil {
		return s.fail(tr, rlog, WrapError(err, ErrConfiguration, "synthesizer setup failed").WithContext("voice", voice))
	}

	results := make([]BeatResult, len(board.Beats))
	limit := s.cfg.Pipeline.BeatConcurrency
	if limit <= 0 {
		limit = planner.BeatCount
	}
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range board.Beats {
		g.Go(func() error {
			return s.runBeat(groupCtx, beatJob{
				runDir:         runDir,
				index:          i + 1,
				beat:           board.Beats[i],
				synth:          synth,
				referenceImage: referenceImage,
				checkpoints:    checkpoints,
				tracker:        tr,
				log:            rlog,
				out:            &results[i],
			})
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return s.fail(tr, rlog, NewErrorWithCause(ErrCancelled, "run cancelled", ctx.Err()))
		}
		return s.fail(tr, rlog, err)
	}

	tr.assembling()
	pairs := make([]assemble.Pair, 0, len(results))
	for _, r := range results {
		pairs = append(pairs, assemble.Pair{
			Index:     r.Index,
			AudioPath: r.AudioPath,
			VideoPath: r.VideoPath,
			Duration:  r.Duration,
		})
	}
	workDir := filepath.Join(runDir, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return s.fail(tr, rlog, WrapError(err, ErrInternal, "create work directory"))
	}
	finalPath := filepath.Join(runDir, FinalName)
	if err := s.assembler.Assemble(ctx, pairs, workDir, finalPath); err != nil {
		if ctx.Err() != nil {
			return s.fail(tr, rlog, NewErrorWithCause(ErrCancelled, "run cancelled during assembly", ctx.Err()))
		}
		return s.fail(tr, rlog, WrapError(err, ErrAssembly, "final assembly failed"))
	}

	captionsPath := s.writeCaptions(runDir, results, rlog)

	manifest := buildManifest(runID, req.Topic, board.Theme, runDir, results, captionsPath, time.Since(started))
	if err := WriteManifest(runDir, manifest); err != nil {
		return s.fail(tr, rlog, WrapError(err, ErrInternal, "write manifest"))
	}

	elapsed := time.Since(started)
	log.Info("Run %s finished in %s: %s", runID, elapsed.Round(time.Millisecond), finalPath)
	rlog.Info("Run finished in %s: %s", elapsed.Round(time.Millisecond), finalPath)
	tr.done(elapsed)

	return &RunResult{
		RunID:        runID,
		Dir:          runDir,
		FinalPath:    finalPath,
		CaptionsPath: captionsPath,
		Storyboard:   board,
		Beats:        results,
		Elapsed:      elapsed,
	}, nil
}

type beatJob struct {
	runDir         string
	index          int
	beat           planner.Beat
	synth          speech.Synthesizer
	referenceImage string
	checkpoints    *beatCheckpoints
	tracker        *tracker
	log            *log.Logger
	out            *BeatResult
}

// runBeat produces the narration clip and scene clip for one beat,
// reusing checkpointed artifacts whose files still verify.
func (s *Service) runBeat(ctx context.Context, job beatJob) error {
	cp, _ := job.checkpoints.get(job.index)

	var clip *speech.Clip
	if fileNonEmpty(cp.AudioPath) && cp.AudioMS > 0 {
		clip = &speech.Clip{Path: cp.AudioPath, Duration: time.Duration(cp.AudioMS) * time.Millisecond}
		job.log.Info("Beat %d: reusing narration %s", job.index, cp.AudioPath)
		job.tracker.beatSynthesized(job.index, clip.Duration, true)
	} else {
		c, err := job.synth.Synthesize(ctx, job.beat.Narration, filepath.Join(job.runDir, fmt.Sprintf("beat_%d", job.index)))
		if err != nil {
			if ctx.Err() != nil {
				return NewErrorWithCause(ErrCancelled, "run cancelled during synthesis", ctx.Err()).WithContext("beat", job.index)
			}
			return WrapError(err, ErrSynthesis, "narration synthesis failed").WithContext("beat", job.index)
		}
		clip = c
		cp.Beat = job.index
		cp.AudioPath = clip.Path
		cp.AudioMS = clip.Duration.Milliseconds()
		if err := job.checkpoints.put(ctx, cp); err != nil {
			job.log.Warn("Beat %d: narration checkpoint failed: %v", job.index, err)
		}
		job.tracker.beatSynthesized(job.index, clip.Duration, false)
	}

	videoPath := filepath.Join(job.runDir, fmt.Sprintf("scene_%d.mp4", job.index))
	taskID := cp.TaskID
	placeholder := false
	if fileNonEmpty(cp.VideoPath) {
		videoPath = cp.VideoPath
		job.log.Info("Beat %d: reusing scene clip %s", job.index, cp.VideoPath)
		job.tracker.beatRendered(job.index, true, false)
	} else {
		id, err := s.renderer.RenderScene(ctx, job.beat.VisualPrompt, job.referenceImage, videoPath)
		taskID = id
		if err != nil {
			if ctx.Err() != nil {
				return NewErrorWithCause(ErrCancelled, "run cancelled during rendering", ctx.Err()).WithContext("beat", job.index)
			}
			if !s.cfg.Render.Placeholder {
				return classifyRenderError(err, job.index, taskID)
			}
			job.log.Warn("Beat %d: render failed, substituting slate: %v", job.index, err)
			if slateErr := s.op.MakeSlate(ctx, videoPath, clip.Duration, "black"); slateErr != nil {
				return WrapError(slateErr, ErrRender, "placeholder slate failed").WithContext("beat", job.index)
			}
			placeholder = true
		}
		// Slates are never checkpointed so a later retry under the
		// same run ID attempts the render again.
		if !placeholder {
			cp.Beat = job.index
			cp.VideoPath = videoPath
			cp.TaskID = taskID
			if err := job.checkpoints.put(ctx, cp); err != nil {
				job.log.Warn("Beat %d: scene checkpoint failed: %v", job.index, err)
			}
		}
		job.tracker.beatRendered(job.index, false, placeholder)
	}

	*job.out = BeatResult{
		Index:        job.index,
		Title:        job.beat.Title,
		Narration:    job.beat.Narration,
		VisualPrompt: job.beat.VisualPrompt,
		AudioPath:    clip.Path,
		Duration:     clip.Duration,
		VideoPath:    videoPath,
		TaskID:       taskID,
		Placeholder:  placeholder,
	}
	return nil
}

// synthesizerFor returns the synthesizer to use for a run. A non-empty
// voice that differs from the configured one gets a fresh engine,
// unless a synthesizer was injected.
func (s *Service) synthesizerFor(voice string) (speech.Synthesizer, error) {
	if s.synthInjected || voice == "" || voice == s.cfg.Speech.Voice {
		return s.synth, nil
	}
	speechCfg := s.cfg.Speech
	speechCfg.Voice = voice
	return speech.NewSynthesizer(speechCfg, s.op)
}

// prepareReferenceImage normalizes the theme's reference image for the
// render API. Cleanup failures fall back to the raw file.
func (s *Service) prepareReferenceImage(theme *themes.Theme, rlog *log.Logger) string {
	if theme == nil || theme.ReferenceImage == "" {
		return ""
	}
	cleaned, err := imaging.CleanReferenceImage(theme.ReferenceImage)
	if err != nil {
		rlog.Warn("Reference image cleanup failed, using original: %v", err)
		return theme.ReferenceImage
	}
	return cleaned
}

// researchBrief gathers planner notes when a researcher is wired. A
// failed brief downgrades to a warning; the planner works without it.
func (s *Service) researchBrief(ctx context.Context, topic string, rlog *log.Logger) string {
	if s.research == nil {
		return ""
	}
	brief, err := s.research.Brief(ctx, topic)
	if err != nil {
		rlog.Warn("Topic research failed, planning without a brief: %v", err)
		return ""
	}
	if brief != "" {
		rlog.Info("Research brief gathered (%d chars)", len(brief))
	}
	return brief
}

// writeCaptions renders the narration cues as an SRT file. Caption
// problems never fail a run that already has its video.
func (s *Service) writeCaptions(runDir string, results []BeatResult, rlog *log.Logger) string {
	texts := make([]string, len(results))
	durations := make([]time.Duration, len(results))
	for i, r := range results {
		texts[i] = r.Narration
		durations[i] = r.Duration
	}
	capFile, err := captions.FromNarrations(texts, durations, s.cfg.Speech.Language.String())
	if err != nil {
		rlog.Warn("Captions skipped: %v", err)
		return ""
	}
	path := filepath.Join(runDir, CaptionsName)
	if err := captions.NewWriter().Write(path, capFile); err != nil {
		rlog.Warn("Captions write failed: %v", err)
		return ""
	}
	return path
}

func (s *Service) fail(tr *tracker, rlog *log.Logger, err error) (*RunResult, error) {
	if IsErrorType(err, ErrCancelled) {
		rlog.Warn("Run cancelled: %v", err)
		log.Warn("Run %s cancelled", tr.runID)
		tr.cancelled()
	} else {
		rlog.Error("Run failed: %v", err)
		log.Error("Run %s failed: %v", tr.runID, err)
		tr.failed(err)
	}
	return nil, err
}

// classifyRenderError separates quota exhaustion from other render
// failures so callers can surface actionable advice.
func classifyRenderError(err error, beat int, taskID string) *ReelError {
	var taskErr *render.TaskError
	quota := errors.As(err, &taskErr) && taskErr.Quota

	var re *ReelError
	if quota {
		re = WrapError(err, ErrQuotaExhausted, "render quota exhausted")
	} else {
		re = WrapError(err, ErrRender, "scene render failed")
	}
	re = re.WithContext("beat", beat)
	if taskID != "" {
		re = re.WithContext("task_id", taskID)
	}
	return re
}

func buildManifest(runID, topic, theme, runDir string, results []BeatResult, captionsPath string, elapsed time.Duration) *Manifest {
	beats := make([]ManifestBeat, 0, len(results))
	for _, r := range results {
		beats = append(beats, ManifestBeat{
			Index:        r.Index,
			Title:        r.Title,
			Narration:    r.Narration,
			VisualPrompt: r.VisualPrompt,
			AudioFile:    relToDir(runDir, r.AudioPath),
			VideoFile:    relToDir(runDir, r.VideoPath),
			DurationMS:   r.Duration.Milliseconds(),
			TaskID:       r.TaskID,
			Placeholder:  r.Placeholder,
		})
	}
	return &Manifest{
		RunID:        runID,
		Topic:        topic,
		Theme:        theme,
		FinalFile:    FinalName,
		CaptionsFile: relToDir(runDir, captionsPath),
		Beats:        beats,
		CreatedAt:    time.Now().UTC(),
		ElapsedMS:    elapsed.Milliseconds(),
	}
}

func relToDir(dir, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return rel
}
