package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/beatreel/internal/planner"
)

// Stage weights sum to 100. Synthesis and rendering spread their
// weight evenly across the four beats, so percent moves as individual
// beats finish rather than jumping per stage.
const (
	weightPlanning  = 15
	weightSynthesis = 20
	weightRendering = 50
	weightAssembly  = 15
)

// tracker turns beat completions into monotonic percent values and
// hands stamped events to the publish callback. Beat goroutines call
// it concurrently.
type tracker struct {
	runID   string
	publish ProgressFunc

	mu         sync.Mutex
	synthDone  int
	renderDone int
	percent    int
}

func newTracker(runID string, publish ProgressFunc) *tracker {
	if publish == nil {
		publish = func(ProgressEvent) {}
	}
	return &tracker{runID: runID, publish: publish}
}

func (t *tracker) emit(stage Stage, percent, beat int, format string, args ...any) {
	t.mu.Lock()
	if percent < t.percent {
		percent = t.percent
	}
	t.percent = percent
	t.mu.Unlock()

	t.publish(ProgressEvent{
		RunID:   t.runID,
		Stage:   stage,
		Percent: percent,
		Message: fmt.Sprintf(format, args...),
		Beat:    beat,
		At:      time.Now(),
	})
}

// beatPercent is the additive progress model: planning is fully
// credited once beats exist, then each finished synthesis and render
// contributes its share.
func beatPercent(synthDone, renderDone int) int {
	return weightPlanning +
		weightSynthesis*synthDone/planner.BeatCount +
		weightRendering*renderDone/planner.BeatCount
}

func (t *tracker) planning(topic string) {
	t.emit(StagePlanning, 0, 0, "planning storyboard for %q", topic)
}

func (t *tracker) planned(beats int) {
	t.emit(StageSynthesizing, weightPlanning, 0, "storyboard ready with %d beats", beats)
}

func (t *tracker) beatSynthesized(beat int, d time.Duration, reused bool) {
	t.mu.Lock()
	t.synthDone++
	pct := beatPercent(t.synthDone, t.renderDone)
	t.mu.Unlock()

	msg := "narration ready (%.1fs)"
	if reused {
		msg = "narration reused from checkpoint (%.1fs)"
	}
	t.emit(StageSynthesizing, pct, beat, msg, d.Seconds())
}

func (t *tracker) beatRendered(beat int, reused, placeholder bool) {
	t.mu.Lock()
	t.renderDone++
	pct := beatPercent(t.synthDone, t.renderDone)
	t.mu.Unlock()

	msg := "scene clip ready"
	switch {
	case reused:
		msg = "scene clip reused from checkpoint"
	case placeholder:
		msg = "scene render failed, slate substituted"
	}
	t.emit(StageRendering, pct, beat, "%s", msg)
}

func (t *tracker) assembling() {
	t.emit(StageAssembling, weightPlanning+weightSynthesis+weightRendering, 0, "assembling final video")
}

func (t *tracker) done(elapsed time.Duration) {
	t.emit(StageDone, 100, 0, "run finished in %s", elapsed.Round(time.Millisecond))
}

func (t *tracker) failed(err error) {
	t.mu.Lock()
	pct := t.percent
	t.mu.Unlock()
	t.emit(StageFailed, pct, 0, "%v", err)
}

func (t *tracker) cancelled() {
	t.mu.Lock()
	pct := t.percent
	t.mu.Unlock()
	t.emit(StageCancelled, pct, 0, "run cancelled")
}

// Board keeps the latest progress event per run. The SSE stream and
// the run list endpoints read snapshots from it; the queue executor
// publishes into it.
type Board struct {
	mu     sync.RWMutex
	latest map[string]ProgressEvent
}

func NewBoard() *Board {
	return &Board{latest: make(map[string]ProgressEvent)}
}

// Publish records the event as the run's latest state.
func (b *Board) Publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[ev.RunID] = ev
}

// Get returns the latest event for a run.
func (b *Board) Get(runID string) (ProgressEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.latest[runID]
	return ev, ok
}

// Snapshot copies the latest event of every known run.
func (b *Board) Snapshot() map[string]ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]ProgressEvent, len(b.latest))
	for id, ev := range b.latest {
		out[id] = ev
	}
	return out
}

// Forget drops a run's entry, used when its directory is swept.
func (b *Board) Forget(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, runID)
}
