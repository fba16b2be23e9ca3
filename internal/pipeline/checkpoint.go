package pipeline

import (
	"context"
	"os"
	"sync"

	"github.com/MimeLyc/beatreel/internal/persistence"
)

// CheckpointStore persists per-beat artifacts so a re-enqueued run can
// skip work that already produced files. *persistence.SQLiteStore
// satisfies it.
type CheckpointStore interface {
	LoadBeatCheckpoints(ctx context.Context, jobID string) ([]persistence.BeatCheckpoint, error)
	SaveBeatCheckpoint(ctx context.Context, cp persistence.BeatCheckpoint) error
}

// beatCheckpoints fronts the store with the run's checkpoints loaded
// once up front. Beat goroutines read and write it concurrently.
type beatCheckpoints struct {
	store CheckpointStore
	runID string

	mu     sync.Mutex
	byBeat map[int]persistence.BeatCheckpoint
}

// loadBeatCheckpoints reads the run's saved checkpoints. With a nil
// store it returns an empty cache whose saves are no-ops, so one-shot
// runs work without a database.
func loadBeatCheckpoints(ctx context.Context, store CheckpointStore, runID string) (*beatCheckpoints, error) {
	c := &beatCheckpoints{
		store:  store,
		runID:  runID,
		byBeat: make(map[int]persistence.BeatCheckpoint),
	}
	if store == nil {
		return c, nil
	}

	saved, err := store.LoadBeatCheckpoints(ctx, runID)
	if err != nil {
		return c, err
	}
	for _, cp := range saved {
		c.byBeat[cp.Beat] = cp
	}
	return c, nil
}

func (c *beatCheckpoints) get(beat int) (persistence.BeatCheckpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp, ok := c.byBeat[beat]
	return cp, ok
}

func (c *beatCheckpoints) put(ctx context.Context, cp persistence.BeatCheckpoint) error {
	cp.JobID = c.runID

	c.mu.Lock()
	c.byBeat[cp.Beat] = cp
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.SaveBeatCheckpoint(ctx, cp)
}

// fileNonEmpty reports whether path exists with content. Checkpointed
// artifacts are only trusted when their files still verify; a swept or
// truncated file sends the beat back through the full phase.
func fileNonEmpty(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
