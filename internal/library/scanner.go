// Package library lists past runs by scanning the run artifact root.
// Results are cached for a short TTL so the UI can poll the listing
// without hammering the filesystem.
package library

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/beatreel/internal/pipeline"
)

type scannerOptions struct {
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

// WithCacheTTL overrides how long a scan result is served from cache.
// Zero or negative disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	runs    []Run
}

// Scanner walks the run root and turns each directory into a Run.
type Scanner struct {
	root string

	mu       sync.RWMutex
	cacheTTL time.Duration
	cache    *scanCache
	version  uint64
}

func NewScanner(root string, opts ...Option) *Scanner {
	options := scannerOptions{cacheTTL: 5 * time.Second}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{
		root:     root,
		cacheTTL: options.cacheTTL,
	}
}

// Invalidate drops the cache so the next Scan rereads the directory.
// Called after a run finishes and by the rescan endpoint.
func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.version++
	s.mu.Unlock()
}

// Scan lists runs newest first. A missing root is an empty library,
// not an error, since nothing has run yet on a fresh install.
func (s *Scanner) Scan(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	version := s.version
	ttl := s.cacheTTL
	if s.cache != nil && s.cache.version == version && ttl > 0 && time.Since(s.cache.scanned) < ttl {
		cached := append([]Run(nil), s.cache.runs...)
		s.mu.RUnlock()
		return cached, nil
	}
	root := s.root
	s.mu.RUnlock()

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Run{}, nil
		}
		return nil, err
	}

	runs := make([]Run, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !entry.IsDir() {
			continue
		}
		runs = append(runs, describeRun(filepath.Join(root, entry.Name()), entry))
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	s.mu.Lock()
	if s.version == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			runs:    append([]Run(nil), runs...),
		}
	}
	s.mu.Unlock()

	return runs, nil
}

func describeRun(dir string, entry os.DirEntry) Run {
	run := Run{ID: filepath.Base(dir), Dir: dir}

	if info, err := entry.Info(); err == nil {
		run.CreatedAt = info.ModTime()
	}

	if m, err := pipeline.ReadManifest(dir); err == nil {
		run.Topic = m.Topic
		run.Theme = m.Theme
		run.Beats = len(m.Beats)
		if !m.CreatedAt.IsZero() {
			run.CreatedAt = m.CreatedAt
		}
		for _, beat := range m.Beats {
			run.DurationMS += beat.DurationMS
			if beat.Placeholder {
				run.Placeholders++
			}
		}
	}

	finalPath := filepath.Join(dir, pipeline.FinalName)
	if info, err := os.Stat(finalPath); err == nil && info.Size() > 0 {
		run.FinalPath = finalPath
		run.HasFinal = true
		run.SizeBytes = info.Size()
	}
	return run
}
