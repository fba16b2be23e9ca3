package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/beatreel/internal/assemble"
	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/persistence"
	"github.com/MimeLyc/beatreel/internal/planner"
	"github.com/MimeLyc/beatreel/internal/render"
	"github.com/MimeLyc/beatreel/internal/speech"
)

type fakePlanner struct {
	mu      sync.Mutex
	board   *planner.Storyboard
	err     error
	lastReq planner.Request
}

func (f *fakePlanner) Plan(_ context.Context, req planner.Request) (*planner.Storyboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.board, nil
}

type fakeSynth struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, basePath string) (*speech.Clip, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("engine refused the text")
	}
	path := basePath + ".wav"
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		return nil, err
	}
	return &speech.Clip{Path: path, Duration: 2 * time.Second}, nil
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRenderer struct {
	mu        sync.Mutex
	calls     []string
	active    int
	maxActive int
	failOn    string
	failErr   error
	block     bool
	started   chan struct{}
	startOnce sync.Once
}

func (f *fakeRenderer) RenderScene(ctx context.Context, prompt, _, outputPath string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	n := len(f.calls)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	taskID := fmt.Sprintf("task-%d", n)
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		if f.failErr != nil {
			return taskID, f.failErr
		}
		return taskID, errors.New("render exploded")
	}
	if err := os.WriteFile(outputPath, []byte("fake video"), 0o644); err != nil {
		return taskID, err
	}
	return taskID, nil
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAssembler struct {
	mu    sync.Mutex
	calls int
	pairs []assemble.Pair
	err   error
}

func (f *fakeAssembler) Assemble(_ context.Context, pairs []assemble.Pair, _, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.pairs = append([]assemble.Pair(nil), pairs...)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("final video"), 0o644)
}

func (f *fakeAssembler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOperator struct {
	mu     sync.Mutex
	slates []string
}

func (f *fakeOperator) ProbeDuration(context.Context, string) (time.Duration, error) {
	return 2 * time.Second, nil
}

func (f *fakeOperator) ConvertToWAV(_ context.Context, _, dst string) error {
	return os.WriteFile(dst, []byte("wav"), 0o644)
}

func (f *fakeOperator) FitVideoToAudio(_ context.Context, _, _, outputPath string, _ time.Duration) error {
	return os.WriteFile(outputPath, []byte("fitted"), 0o644)
}

func (f *fakeOperator) ConcatClips(_ context.Context, _ []string, outputPath string) error {
	return os.WriteFile(outputPath, []byte("concat"), 0o644)
}

func (f *fakeOperator) MakeSlate(_ context.Context, outputPath string, _ time.Duration, _ string) error {
	f.mu.Lock()
	f.slates = append(f.slates, outputPath)
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("slate"), 0o644)
}

type memCheckpoints struct {
	mu      sync.Mutex
	byRun   map[string]map[int]persistence.BeatCheckpoint
	loadErr error
	saveErr error
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{byRun: make(map[string]map[int]persistence.BeatCheckpoint)}
}

func (m *memCheckpoints) LoadBeatCheckpoints(_ context.Context, jobID string) ([]persistence.BeatCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []persistence.BeatCheckpoint
	for _, cp := range m.byRun[jobID] {
		out = append(out, cp)
	}
	return out, nil
}

func (m *memCheckpoints) SaveBeatCheckpoint(_ context.Context, cp persistence.BeatCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.byRun[cp.JobID] == nil {
		m.byRun[cp.JobID] = make(map[int]persistence.BeatCheckpoint)
	}
	m.byRun[cp.JobID][cp.Beat] = cp
	return nil
}

func (m *memCheckpoints) get(jobID string, beat int) (persistence.BeatCheckpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.byRun[jobID][beat]
	return cp, ok
}

type progressRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (p *progressRecorder) record(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *progressRecorder) last() ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return ProgressEvent{}
	}
	return p.events[len(p.events)-1]
}

func (p *progressRecorder) all() []ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProgressEvent(nil), p.events...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Pipeline.OutputDir = t.TempDir()
	cfg.Pipeline.BeatConcurrency = 4
	cfg.Speech.Voice = "Samantha"
	cfg.Speech.Language = language.English
	cfg.System.LogLevel = "info"
	return cfg
}

func testBoard(topic string) *planner.Storyboard {
	beats := make([]planner.Beat, planner.BeatCount)
	for i := range beats {
		beats[i] = planner.Beat{
			Title:        fmt.Sprintf("Beat %d", i+1),
			Narration:    fmt.Sprintf("Narration for beat %d of the story.", i+1),
			VisualPrompt: fmt.Sprintf("Visual %d", i+1),
		}
	}
	return &planner.Storyboard{Topic: topic, Beats: beats}
}

type testRig struct {
	cfg       *config.Config
	planner   *fakePlanner
	synth     *fakeSynth
	renderer  *fakeRenderer
	assembler *fakeAssembler
	op        *fakeOperator
	store     *memCheckpoints
	progress  *progressRecorder
	svc       *Service
}

func newTestRig(t *testing.T, topic string) *testRig {
	t.Helper()
	rig := &testRig{
		cfg:       testConfig(t),
		planner:   &fakePlanner{board: testBoard(topic)},
		synth:     &fakeSynth{},
		renderer:  &fakeRenderer{},
		assembler: &fakeAssembler{},
		op:        &fakeOperator{},
		store:     newMemCheckpoints(),
		progress:  &progressRecorder{},
	}
	svc, err := NewService(rig.cfg,
		WithPlanner(rig.planner),
		WithSynthesizer(rig.synth),
		WithRenderer(rig.renderer),
		WithAssembler(rig.assembler),
		WithOperator(rig.op),
		WithCheckpointStore(rig.store),
		WithProgress(rig.progress.record),
	)
	require.NoError(t, err)
	rig.svc = svc
	return rig
}

func TestRunProducesAllArtifacts(t *testing.T) {
	rig := newTestRig(t, "the history of coffee")

	result, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-1", Topic: "the history of coffee"})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "run-1", result.RunID)
	assert.Len(t, result.Beats, planner.BeatCount)
	for i, beat := range result.Beats {
		assert.Equal(t, i+1, beat.Index)
		assert.FileExists(t, beat.AudioPath)
		assert.FileExists(t, beat.VideoPath)
		assert.NotEmpty(t, beat.TaskID)
		assert.False(t, beat.Placeholder)
	}

	runDir := filepath.Join(rig.cfg.RunsDir(), "run-1")
	assert.Equal(t, runDir, result.Dir)
	assert.FileExists(t, filepath.Join(runDir, StoryboardName))
	assert.FileExists(t, filepath.Join(runDir, FinalName))
	assert.FileExists(t, filepath.Join(runDir, CaptionsName))
	assert.FileExists(t, filepath.Join(runDir, RunLogName))

	manifest, err := ReadManifest(runDir)
	require.NoError(t, err)
	assert.Equal(t, "run-1", manifest.RunID)
	assert.Equal(t, "the history of coffee", manifest.Topic)
	assert.Equal(t, FinalName, manifest.FinalFile)
	assert.Equal(t, CaptionsName, manifest.CaptionsFile)
	require.Len(t, manifest.Beats, planner.BeatCount)
	for i, beat := range manifest.Beats {
		assert.Equal(t, i+1, beat.Index)
		assert.False(t, filepath.IsAbs(beat.AudioFile), "manifest paths should be relative")
		assert.False(t, filepath.IsAbs(beat.VideoFile), "manifest paths should be relative")
		assert.Equal(t, int64(2000), beat.DurationMS)
	}

	last := rig.progress.last()
	assert.Equal(t, StageDone, last.Stage)
	assert.Equal(t, 100, last.Percent)
}

func TestRunAssemblesBeatsInOrder(t *testing.T) {
	rig := newTestRig(t, "volcanoes")

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-order", Topic: "volcanoes"})
	require.NoError(t, err)

	require.Equal(t, 1, rig.assembler.callCount())
	require.Len(t, rig.assembler.pairs, planner.BeatCount)
	for i, pair := range rig.assembler.pairs {
		assert.Equal(t, i+1, pair.Index)
		assert.Contains(t, pair.AudioPath, fmt.Sprintf("beat_%d", i+1))
		assert.Contains(t, pair.VideoPath, fmt.Sprintf("scene_%d", i+1))
	}
}

func TestRunRejectsEmptyTopic(t *testing.T) {
	rig := newTestRig(t, "anything")

	_, err := rig.svc.Run(context.Background(), RunRequest{Topic: "   "})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConfiguration))
}

func TestRunPlannerFailure(t *testing.T) {
	rig := newTestRig(t, "doomed")
	rig.planner.err = errors.New("model unavailable")

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-plan-fail", Topic: "doomed"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrPlanning))
	assert.Equal(t, StageFailed, rig.progress.last().Stage)
	assert.Equal(t, 0, rig.assembler.callCount())

	runDir := filepath.Join(rig.cfg.RunsDir(), "run-plan-fail")
	assert.NoFileExists(t, filepath.Join(runDir, ManifestName))
}

func TestRunSynthesisFailure(t *testing.T) {
	rig := newTestRig(t, "stories")
	rig.synth.failOn = "beat 2"

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-synth-fail", Topic: "stories"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrSynthesis))
	assert.Equal(t, StageFailed, rig.progress.last().Stage)
	assert.Equal(t, 0, rig.assembler.callCount())
}

func TestRunRenderFailureAbortsByDefault(t *testing.T) {
	rig := newTestRig(t, "glaciers")
	rig.renderer.failOn = "Visual 3"

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-render-fail", Topic: "glaciers"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrRender))
	assert.Equal(t, 0, rig.assembler.callCount())
	assert.Empty(t, rig.op.slates)
}

func TestRunRenderQuotaClassified(t *testing.T) {
	rig := newTestRig(t, "comets")
	rig.renderer.failOn = "Visual 1"
	rig.renderer.failErr = &render.TaskError{Quota: true, Message: "quota exceeded"}

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-quota", Topic: "comets"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrQuotaExhausted))

	var taskErr *render.TaskError
	assert.True(t, errors.As(err, &taskErr), "original cause should survive wrapping")
}

func TestRunRenderFailureSubstitutesSlate(t *testing.T) {
	rig := newTestRig(t, "lighthouses")
	rig.cfg.Render.Placeholder = true
	rig.renderer.failOn = "Visual 2"

	result, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-slate", Topic: "lighthouses"})
	require.NoError(t, err)

	require.Len(t, rig.op.slates, 1)
	assert.Contains(t, rig.op.slates[0], "scene_2.mp4")

	assert.False(t, result.Beats[0].Placeholder)
	assert.True(t, result.Beats[1].Placeholder)
	assert.False(t, result.Beats[2].Placeholder)
	assert.Equal(t, 1, rig.assembler.callCount())

	// The slate beat keeps its audio checkpoint but gets no video
	// checkpoint, so a retry attempts the render again.
	cp, ok := rig.store.get("run-slate", 2)
	require.True(t, ok)
	assert.NotEmpty(t, cp.AudioPath)
	assert.Empty(t, cp.VideoPath)

	manifest, err := ReadManifest(result.Dir)
	require.NoError(t, err)
	assert.True(t, manifest.Beats[1].Placeholder)
}

func TestRunReusesCheckpointedArtifacts(t *testing.T) {
	rig := newTestRig(t, "the deep sea")

	runDir := filepath.Join(rig.cfg.RunsDir(), "run-resume")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	audioPath := filepath.Join(runDir, "beat_1.wav")
	videoPath := filepath.Join(runDir, "scene_1.mp4")
	require.NoError(t, os.WriteFile(audioPath, []byte("previous audio"), 0o644))
	require.NoError(t, os.WriteFile(videoPath, []byte("previous video"), 0o644))
	require.NoError(t, rig.store.SaveBeatCheckpoint(context.Background(), persistence.BeatCheckpoint{
		JobID:     "run-resume",
		Beat:      1,
		AudioPath: audioPath,
		AudioMS:   1500,
		VideoPath: videoPath,
		TaskID:    "task-old",
	}))

	result, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-resume", Topic: "the deep sea"})
	require.NoError(t, err)

	assert.Equal(t, planner.BeatCount-1, rig.synth.callCount(), "beat 1 narration should be reused")
	assert.Equal(t, planner.BeatCount-1, rig.renderer.callCount(), "beat 1 scene should be reused")

	assert.Equal(t, audioPath, result.Beats[0].AudioPath)
	assert.Equal(t, videoPath, result.Beats[0].VideoPath)
	assert.Equal(t, "task-old", result.Beats[0].TaskID)
	assert.Equal(t, 1500*time.Millisecond, result.Beats[0].Duration)
}

func TestRunIgnoresCheckpointsWithMissingFiles(t *testing.T) {
	rig := newTestRig(t, "lost cities")

	require.NoError(t, rig.store.SaveBeatCheckpoint(context.Background(), persistence.BeatCheckpoint{
		JobID:     "run-stale",
		Beat:      1,
		AudioPath: "/nonexistent/beat_1.wav",
		AudioMS:   1500,
		VideoPath: "/nonexistent/scene_1.mp4",
	}))

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-stale", Topic: "lost cities"})
	require.NoError(t, err)

	assert.Equal(t, planner.BeatCount, rig.synth.callCount(), "stale audio checkpoint must not be trusted")
	assert.Equal(t, planner.BeatCount, rig.renderer.callCount(), "stale video checkpoint must not be trusted")
}

func TestRunCancellation(t *testing.T) {
	rig := newTestRig(t, "a run to stop")
	rig.renderer.block = true
	rig.renderer.started = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := rig.svc.Run(ctx, RunRequest{ID: "run-cancel", Topic: "a run to stop"})
		errCh <- err
	}()

	<-rig.renderer.started
	cancel()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrCancelled))
	assert.Equal(t, StageCancelled, rig.progress.last().Stage)
	assert.Equal(t, 0, rig.assembler.callCount())
	assert.NoFileExists(t, filepath.Join(rig.cfg.RunsDir(), "run-cancel", FinalName))
}

func TestRunHonorsBeatConcurrencyLimit(t *testing.T) {
	rig := newTestRig(t, "one at a time")
	rig.cfg.Pipeline.BeatConcurrency = 1

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-serial", Topic: "one at a time"})
	require.NoError(t, err)
	assert.Equal(t, 1, rig.renderer.maxActive)
}

func TestRunGeneratesIDWhenMissing(t *testing.T) {
	rig := newTestRig(t, "anonymous run")

	result, err := rig.svc.Run(context.Background(), RunRequest{Topic: "anonymous run"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.DirExists(t, filepath.Join(rig.cfg.RunsDir(), result.RunID))
}

func TestRunPassesBriefToPlanner(t *testing.T) {
	rig := newTestRig(t, "briefed topic")
	rig.svc.research = researcherFunc(func(_ context.Context, topic string) (string, error) {
		return "brief about " + topic, nil
	})

	_, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-brief", Topic: "briefed topic"})
	require.NoError(t, err)
	assert.Equal(t, "brief about briefed topic", rig.planner.lastReq.Brief)
}

func TestRunSurvivesResearchFailure(t *testing.T) {
	rig := newTestRig(t, "unresearched topic")
	rig.svc.research = researcherFunc(func(context.Context, string) (string, error) {
		return "", errors.New("search API down")
	})

	result, err := rig.svc.Run(context.Background(), RunRequest{ID: "run-nobrief", Topic: "unresearched topic"})
	require.NoError(t, err)
	assert.Empty(t, rig.planner.lastReq.Brief)
	assert.Equal(t, StageDone, rig.progress.last().Stage)
	assert.NotNil(t, result)
}

type researcherFunc func(ctx context.Context, topic string) (string, error)

func (f researcherFunc) Brief(ctx context.Context, topic string) (string, error) {
	return f(ctx, topic)
}

func TestNewServiceRequiresPlannerConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "bogus"

	_, err := NewService(cfg)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConfiguration))
}

func TestSynthesizerForVoiceOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Speech.Engine = config.EngineCommand
	cfg.Speech.Command = "say"

	rig := &testRig{
		planner:   &fakePlanner{board: testBoard("x")},
		renderer:  &fakeRenderer{},
		assembler: &fakeAssembler{},
		op:        &fakeOperator{},
	}
	svc, err := NewService(cfg,
		WithPlanner(rig.planner),
		WithRenderer(rig.renderer),
		WithAssembler(rig.assembler),
		WithOperator(rig.op),
	)
	require.NoError(t, err)

	same, err := svc.synthesizerFor("")
	require.NoError(t, err)
	assert.Equal(t, svc.synth, same)

	same, err = svc.synthesizerFor("Samantha")
	require.NoError(t, err)
	assert.Equal(t, svc.synth, same)

	other, err := svc.synthesizerFor("Daniel")
	require.NoError(t, err)
	assert.NotEqual(t, svc.synth, other)
}

func TestSynthesizerForInjectedIgnoresVoice(t *testing.T) {
	rig := newTestRig(t, "x")

	got, err := rig.svc.synthesizerFor("Daniel")
	require.NoError(t, err)
	assert.Equal(t, rig.svc.synth, got)
}
