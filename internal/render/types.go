// Package render drives an Ark-style asynchronous video generation API:
// submit a prompt, poll the task until it reaches a terminal status,
// download the produced clip.
package render

import (
	"context"
	"fmt"
	"strings"
)

// State is a stage of the poll loop.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Remote APIs have drifted on terminal status spelling, so both sets
// are matched case-insensitively.
var (
	successStatuses = map[string]bool{
		"succeeded": true,
		"success":   true,
		"done":      true,
		"completed": true,
		"finish":    true,
		"finished":  true,
	}
	failureStatuses = map[string]bool{
		"failed":    true,
		"error":     true,
		"canceled":  true,
		"cancelled": true,
	}
)

func isSuccessStatus(status string) bool {
	return successStatuses[strings.ToLower(strings.TrimSpace(status))]
}

func isFailureStatus(status string) bool {
	return failureStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// Task is one poll snapshot of a remote render task. The full response
// body is retained because the asset URL moves around between API
// revisions.
type Task struct {
	ID      string
	Status  string
	payload map[string]interface{}
}

// VideoURL deep-searches the poll response for the produced clip's URL.
func (t *Task) VideoURL() (string, bool) {
	if t == nil {
		return "", false
	}
	return findAssetURL(t.payload)
}

// TaskError describes a render task that ended without a video. Quota
// marks rate or credit exhaustion, which callers treat differently
// from an ordinary failure.
type TaskError struct {
	TaskID     string
	LastStatus string
	Quota      bool
	Message    string
}

func (e *TaskError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "render task failed"
	}
	if e.TaskID != "" {
		msg = fmt.Sprintf("task %s: %s", e.TaskID, msg)
	}
	if e.LastStatus != "" {
		msg = fmt.Sprintf("%s (last status %q)", msg, e.LastStatus)
	}
	if e.Quota {
		msg += " [quota exhausted]"
	}
	return msg
}

// Renderer turns a visual prompt into a downloaded video clip and
// reports the remote task id that produced it.
type Renderer interface {
	RenderScene(ctx context.Context, prompt, referenceImage, outputPath string) (string, error)
}
