package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/httpapi"
	"github.com/MimeLyc/beatreel/internal/jobs"
	"github.com/MimeLyc/beatreel/internal/library"
	"github.com/MimeLyc/beatreel/internal/persistence"
	"github.com/MimeLyc/beatreel/internal/pipeline"
	"github.com/MimeLyc/beatreel/internal/research"
	"github.com/MimeLyc/beatreel/internal/retention"
	"github.com/MimeLyc/beatreel/internal/themes"
	"github.com/MimeLyc/beatreel/pkg/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	topic := flag.String("topic", "", "run the pipeline once for this topic and exit")
	themeID := flag.String("theme", "", "theme id for the one-shot run")
	voice := flag.String("voice", "", "narrator voice for the one-shot run")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	if *topic != "" {
		os.Exit(runOnce(cfg, *topic, *themeID, *voice))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx, cfg); err != nil {
		log.Fatal("Server exited: %v", err)
	}
}

// loadConfig builds the config from the environment with the persisted
// runtime settings overlaid on top.
func loadConfig() (*config.Config, error) {
	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		opts = append(opts, config.WithRuntimeSettings(settings))
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
	}
	return config.NewFromEnv(opts...)
}

// runOnce executes a single run in the foreground, printing stage
// progress to stdout. No queue, no server, no checkpoints.
func runOnce(cfg *config.Config, topic, themeID, voice string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildPipeline(cfg, pipeline.WithProgress(func(ev pipeline.ProgressEvent) {
		fmt.Printf("[%3d%%] %-12s %s\n", ev.Percent, ev.Stage, ev.Message)
	}))
	if err != nil {
		log.Error("Pipeline setup failed: %v", err)
		return 1
	}

	result, err := svc.Run(ctx, pipeline.RunRequest{
		Topic: topic,
		Theme: themeID,
		Voice: voice,
	})
	if err != nil {
		log.Error("Run failed: %v", err)
		return 1
	}

	fmt.Printf("Final video: %s\n", result.FinalPath)
	if result.CaptionsPath != "" {
		fmt.Printf("Captions:    %s\n", result.CaptionsPath)
	}
	return 0
}

// buildPipeline assembles a pipeline service, wiring the researcher in
// when research is enabled.
func buildPipeline(cfg *config.Config, opts ...pipeline.Option) (*pipeline.Service, error) {
	if cfg.Agent.ResearchEnabled {
		researcher, err := research.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build researcher: %w", err)
		}
		opts = append(opts, pipeline.WithResearcher(researcher))
	}
	return pipeline.NewService(cfg, opts...)
}

// app holds the long-lived server components. The pipeline service
// behind the executor is swapped when runtime settings change, so the
// next run picks up the new configuration.
type app struct {
	cfg     *config.Config
	store   *persistence.SQLiteStore
	board   *pipeline.Board
	themes  *themes.Registry
	scanner *library.Scanner

	mu  sync.RWMutex
	svc *pipeline.Service
}

func (a *app) execute(ctx context.Context, job *jobs.Job) error {
	a.mu.RLock()
	svc := a.svc
	a.mu.RUnlock()

	_, err := svc.Run(ctx, pipeline.RunRequest{
		ID:    job.ID,
		Topic: job.Payload.Topic,
		Theme: job.Payload.Theme,
		Voice: job.Payload.Voice,
	})
	return err
}

func (a *app) rebuildPipeline(cfg *config.Config) (*pipeline.Service, error) {
	return buildPipeline(cfg,
		pipeline.WithCheckpointStore(a.store),
		pipeline.WithProgress(a.board.Publish),
		pipeline.WithThemes(a.themes),
	)
}

// applyRuntimeSettings rebuilds the pipeline service from the boot
// config with the new settings overlaid. Queued and future runs use
// it; a retention cron change still needs a restart.
func (a *app) applyRuntimeSettings(next config.RuntimeSettings) error {
	updated := *a.cfg
	config.WithRuntimeSettings(next)(&updated)

	svc, err := a.rebuildPipeline(&updated)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.svc = svc
	a.mu.Unlock()

	if updated.Retention.Cron != a.cfg.Retention.Cron {
		log.Info("Retention cron changed to %q, takes effect after restart", updated.Retention.Cron)
	}
	log.Info("Runtime settings applied")
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.RunsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs dir: %w", err)
	}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("State store close: %v", err)
		}
	}()

	reg, err := themes.Load(cfg.Pipeline.ThemesFile)
	if err != nil {
		return err
	}

	a := &app{
		cfg:    cfg,
		store:  store,
		board:  pipeline.NewBoard(),
		themes: reg,
	}
	svc, err := a.rebuildPipeline(cfg)
	if err != nil {
		return err
	}
	a.svc = svc

	queue := jobs.NewQueue(cfg.Pipeline.QueueWorkers, store)
	queue.Start(a.execute)

	a.scanner = library.NewScanner(cfg.RunsDir())

	cronEngine := cron.New()
	sweeper := retention.NewSweeper(cfg, cronEngine, queue, retention.WithOnSwept(func(id string) {
		a.scanner.Invalidate()
		a.board.Forget(id)
	}))

	settingsStore, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		return fmt.Errorf("failed to init settings store: %w", err)
	}

	httpSrv := httpapi.NewServer(cfg, queue, a.scanner,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithBoard(a.board),
		httpapi.WithThemes(reg),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(a.applyRuntimeSettings),
		httpapi.WithSweepReporter(sweeper),
		httpapi.WithCheckpointReader(store),
	)

	return runWithComponents(ctx, cfg, sweeper, cronEngine, httpSrv, queue.Stop)
}

// scheduler registers recurring work on the cron engine before it
// starts.
type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// runWithComponents runs the server stack until the context is
// cancelled, then shuts down in order: HTTP drain first so no new work
// arrives, the onDrained hooks (queue stop), cron engine last.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer, onDrained ...func()) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	engine.Start()
	defer engine.Stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()
	log.Info("HTTP server listening on %s", cfg.HTTP.Addr)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	for _, fn := range onDrained {
		fn()
	}
	return nil
}
