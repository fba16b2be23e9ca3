package jobs

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether a job in this status will never run again.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload is everything a worker needs to execute one run.
type JobPayload struct {
	Topic string `json:"topic"`
	Theme string `json:"theme,omitempty"`
	Voice string `json:"voice,omitempty"`
}

// Job is one queued video run. The job ID doubles as the run ID and
// names the run's artifact directory.
type Job struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DedupeKey collapses duplicate submissions of the same topic and
// theme while one of them is still queued or running. The topic is
// lowercased and whitespace-normalized so cosmetic variations dedupe.
func DedupeKey(topic, theme string) string {
	topic = strings.Join(strings.Fields(strings.ToLower(topic)), " ")
	return topic + "|" + strings.ToLower(strings.TrimSpace(theme))
}
