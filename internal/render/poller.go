package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// Clock abstracts time so poll behavior can be tested without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// TaskAPI is the slice of Client the poller needs.
type TaskAPI interface {
	GetTask(ctx context.Context, taskID string) (*Task, error)
}

// Poller drives a submitted task to a terminal state.
type Poller struct {
	api      TaskAPI
	interval time.Duration
	budget   time.Duration
	clock    Clock
}

// NewPoller applies the configured interval and budget, falling back
// to 2s / 180s when unset.
func NewPoller(api TaskAPI, cfg config.RenderConfig) *Poller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2
	}
	budget := cfg.PollTimeout
	if budget <= 0 {
		budget = 180
	}
	return &Poller{
		api:      api,
		interval: time.Duration(interval) * time.Second,
		budget:   time.Duration(budget) * time.Second,
		clock:    realClock{},
	}
}

// WithClock swaps the time source. Tests use this to run the loop on a
// synthetic clock.
func (p *Poller) WithClock(clock Clock) *Poller {
	p.clock = clock
	return p
}

// WaitForVideo polls the task until it reaches a terminal status and
// returns the produced clip's URL. Transient query errors are retried
// within the time budget; quota exhaustion and terminal failures are
// not.
func (p *Poller) WaitForVideo(ctx context.Context, taskID string) (string, error) {
	var (
		state      = StateSubmitted
		deadline   = p.clock.Now().Add(p.budget)
		lastStatus string
		videoURL   string
		failure    *TaskError
	)

	for {
		switch state {
		case StateSubmitted:
			state = StatePolling

		case StatePolling:
			if !p.clock.Now().Before(deadline) {
				state = StateTimedOut
				continue
			}

			task, err := p.api.GetTask(ctx, taskID)
			if err != nil {
				var taskErr *TaskError
				if errors.As(err, &taskErr) && taskErr.Quota {
					if taskErr.LastStatus == "" {
						taskErr.LastStatus = lastStatus
					}
					failure = taskErr
					state = StateFailed
					continue
				}
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				log.Warn("poll of task %s failed, retrying: %v", taskID, err)
			} else {
				lastStatus = task.Status
				switch {
				case isSuccessStatus(task.Status):
					url, ok := task.VideoURL()
					if !ok {
						failure = &TaskError{
							TaskID:     taskID,
							LastStatus: task.Status,
							Message:    "terminal response carries no video URL",
						}
						state = StateFailed
						continue
					}
					videoURL = url
					state = StateSucceeded
					continue
				case isFailureStatus(task.Status):
					failure = &TaskError{
						TaskID:     taskID,
						LastStatus: task.Status,
						Message:    "render rejected by the generation service",
					}
					state = StateFailed
					continue
				default:
					log.Debug("task %s still %q", taskID, task.Status)
				}
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-p.clock.After(p.interval):
			}

		case StateSucceeded:
			return videoURL, nil

		case StateFailed:
			return "", failure

		case StateTimedOut:
			return "", &TaskError{
				TaskID:     taskID,
				LastStatus: lastStatus,
				Message:    fmt.Sprintf("no terminal status within %s", p.budget),
			}
		}
	}
}
