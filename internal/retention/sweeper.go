// Package retention deletes run directories past their age cutoff on
// a cron schedule. Directories of pending or running jobs are never
// touched, whatever their age.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/pkg/file"
	"github.com/MimeLyc/beatreel/pkg/icron"
	"github.com/MimeLyc/beatreel/pkg/log"
)

// ActiveChecker reports whether a run ID belongs to a live job. The
// queue implements it.
type ActiveChecker interface {
	Active(id string) bool
}

// SweepResult describes one sweep pass.
type SweepResult struct {
	Deleted       []string
	SkippedActive []string
}

// Sweeper removes run directories whose newest content is older than
// the configured number of days.
type Sweeper struct {
	runsDir  string
	days     int
	cronExpr string
	cron     *cron.Cron
	active   ActiveChecker
	onSwept  func(id string)

	group singleflight.Group
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithOnSwept registers a callback invoked per deleted run ID, used to
// drop library cache entries and progress board rows.
func WithOnSwept(fn func(id string)) Option {
	return func(s *Sweeper) { s.onSwept = fn }
}

func NewSweeper(cfg *config.Config, cronEngine *cron.Cron, active ActiveChecker, opts ...Option) *Sweeper {
	s := &Sweeper{
		runsDir:  cfg.RunsDir(),
		days:     cfg.Retention.Days,
		cronExpr: cfg.Retention.Cron,
		cron:     cronEngine,
		active:   active,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers the sweep on the cron engine. Overlapping
// triggers collapse into one running sweep.
func (s *Sweeper) Schedule(ctx context.Context) error {
	if s.days <= 0 {
		log.Info("Retention sweeping disabled (RETENTION_DAYS=%d)", s.days)
		return nil
	}

	runFunc := func() {
		_, _, _ = s.group.Do("sweep", func() (any, error) {
			result, err := s.Sweep(ctx)
			if err != nil {
				log.Error("Retention sweep failed: %v", err)
				return nil, err
			}
			if len(result.Deleted) > 0 || len(result.SkippedActive) > 0 {
				log.Info("Retention sweep removed %d run dirs, skipped %d active",
					len(result.Deleted), len(result.SkippedActive))
			}
			return nil, nil
		})
	}
	_, err := s.cron.AddFunc(s.cronExpr, runFunc)
	return err
}

// Sweep removes stale run directories once and reports what happened.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if s.days <= 0 {
		return result, nil
	}

	cutoff := time.Now().Add(-time.Duration(s.days) * 24 * time.Hour)
	stale, err := file.SubdirsModifiedBefore(s.runsDir, cutoff)
	if err != nil {
		return result, err
	}

	for _, dir := range stale {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		id := filepath.Base(dir)
		if s.active != nil && s.active.Active(id) {
			result.SkippedActive = append(result.SkippedActive, id)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Error("Retention sweep could not remove %s: %v", dir, err)
			continue
		}
		log.Info("Retention sweep removed run dir %s", dir)
		result.Deleted = append(result.Deleted, id)
		if s.onSwept != nil {
			s.onSwept(id)
		}
	}
	return result, nil
}

// TriggerInfo reports the sweep schedule for status displays. Nil when
// retention is disabled.
func (s *Sweeper) TriggerInfo() (*icron.TriggerInfo, error) {
	if s.days <= 0 {
		return nil, nil
	}
	return icron.GetTriggerInfo(s.cronExpr, time.Now())
}
