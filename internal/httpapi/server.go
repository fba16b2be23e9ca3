// Package httpapi serves the front end: run enqueueing and inspection,
// the live progress stream, the run library, theme listing, runtime
// settings, and the static single-page UI.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/jobs"
	"github.com/MimeLyc/beatreel/internal/library"
	"github.com/MimeLyc/beatreel/internal/persistence"
	"github.com/MimeLyc/beatreel/internal/pipeline"
	"github.com/MimeLyc/beatreel/internal/themes"
	"github.com/MimeLyc/beatreel/pkg/icron"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

// sweepReporter feeds the retention schedule into /api/status. The
// retention sweeper implements it.
type sweepReporter interface {
	TriggerInfo() (*icron.TriggerInfo, error)
}

// checkpointReader exposes per-beat artifact state for run detail.
type checkpointReader interface {
	LoadBeatCheckpoints(ctx context.Context, jobID string) ([]persistence.BeatCheckpoint, error)
}

type Server struct {
	cfg      *config.Config
	queue    *jobs.Queue
	scanner  *library.Scanner
	board    *pipeline.Board
	themes   *themes.Registry
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	sweep    sweepReporter
	jobData  checkpointReader

	uiEnabled   bool
	uiStaticDir string

	router chi.Router
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithBoard wires the progress board the pipeline publishes into.
func WithBoard(board *pipeline.Board) Option {
	return func(s *Server) {
		s.board = board
	}
}

func WithThemes(reg *themes.Registry) Option {
	return func(s *Server) {
		s.themes = reg
	}
}

func WithSweepReporter(sweep sweepReporter) Option {
	return func(s *Server) {
		s.sweep = sweep
	}
}

// WithCheckpointReader exposes per-beat checkpoint state in run detail.
func WithCheckpointReader(store checkpointReader) Option {
	return func(s *Server) {
		s.jobData = store
	}
}

func NewServer(cfg *config.Config, queue *jobs.Queue, scanner *library.Scanner, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		queue:   queue,
		scanner: scanner,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleEnqueueRun)
			r.Get("/stream", s.handleRunStream)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleRunDetail)
				r.Post("/cancel", s.handleCancelRun)
				r.Get("/video", s.handleRunVideo)
			})
		})
		r.Get("/library", s.handleLibrary)
		r.Post("/library/rescan", s.handleLibraryRescan)
		r.Get("/themes", s.handleThemes)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Get("/status", s.handleStatus)
	})

	r.Get("/*", s.handleStatic)
	return r
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
