package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*Job)}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memoryStore) DeleteJobData(_ context.Context, _ string) error {
	return nil
}

func (m *memoryStore) get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return cloneJob(j), ok
}

func TestQueue_RecoversPendingAndRunningJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["run-1"] = &Job{
		ID:        "run-1",
		Source:    "api",
		DedupeKey: "why rivers bend|",
		Status:    StatusPending,
		Payload:   JobPayload{Topic: "why rivers bend"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.jobs["run-2"] = &Job{
		ID:        "run-2",
		Source:    "api",
		DedupeKey: "how bees navigate|",
		Status:    StatusRunning,
		Payload:   JobPayload{Topic: "how bees navigate"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	q := NewQueue(1, store)

	jobs := q.List()
	require.Len(t, jobs, 2)
	byID := map[string]*Job{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	require.Contains(t, byID, "run-2")
	assert.Equal(t, StatusPending, byID["run-2"].Status)

	q.Start(func(_ context.Context, _ *Job) error { return nil })
	defer q.Stop()

	require.Eventually(t, func() bool {
		got, ok := q.Get("run-1")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, ok := q.Get("run-2")
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_TerminalJobsStayTerminalAfterRestart(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["run-done"] = &Job{
		ID: "run-done", Source: "api", DedupeKey: "done|",
		Status: StatusSuccess, CreatedAt: now, UpdatedAt: now,
	}
	store.jobs["run-cancelled"] = &Job{
		ID: "run-cancelled", Source: "api", DedupeKey: "cxl|",
		Status: StatusCancelled, CreatedAt: now, UpdatedAt: now,
	}

	q := NewQueue(1, store)

	got, ok := q.Get("run-done")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, got.Status)

	got, ok = q.Get("run-cancelled")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, got.Status)

	// Terminal jobs do not hold their dedupe keys.
	_, created := q.Enqueue(EnqueueRequest{Source: "api", DedupeKey: "done|"})
	assert.True(t, created)
}

func TestQueue_StopLeavesInterruptedJobRunningInStore(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)

	running := make(chan struct{})
	var once sync.Once
	q.Start(func(ctx context.Context, _ *Job) error {
		once.Do(func() { close(running) })
		<-ctx.Done()
		return ctx.Err()
	})

	job, created := q.Enqueue(EnqueueRequest{
		Source:    "api",
		DedupeKey: "interrupted|",
		Payload:   JobPayload{Topic: "interrupted"},
	})
	require.True(t, created)

	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("job never started")
	}

	q.Stop()

	// The store still says running, so the next process hydrates the
	// job back to pending and finishes the work.
	stored, ok := store.get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, stored.Status)

	q2 := NewQueue(1, store)
	got, ok := q2.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
}
