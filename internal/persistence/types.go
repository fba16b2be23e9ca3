package persistence

import "time"

// BeatCheckpoint records one beat's finished artifacts so a restarted
// run can skip work whose output still exists on disk. AudioMS is the
// probed narration duration in milliseconds; TaskID is the remote
// render task that produced the clip.
type BeatCheckpoint struct {
	JobID     string
	Beat      int
	AudioPath string
	AudioMS   int64
	VideoPath string
	TaskID    string
	UpdatedAt time.Time
}
