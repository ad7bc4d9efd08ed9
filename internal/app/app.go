package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/metrics"
	"videocounter/internal/repository/sqlite"
	"videocounter/internal/route"
	"videocounter/internal/service/ai"
	"videocounter/internal/service/annotate"
	"videocounter/internal/service/job"
	"videocounter/internal/service/pipeline"
	"videocounter/internal/service/storage"
	"videocounter/internal/service/video"
	"videocounter/internal/service/websocket"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	config       *config.Config
	logger       *logger.Logger
	db           *sqlite.DB
	detectors    ai.Pool
	seriesBuffer *storage.SeriesBuffer
	hubService   *websocket.HubService
	orchestrator *job.Orchestrator
	metrics      *metrics.Metrics
}

func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := storage.NewVideoStore(cfg, log)
	if err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	// one network per worker; a net is not safe for concurrent forwards
	detectors := ai.NewPool(cfg, log, cfg.ProcessingWorkers)
	workers := make([]pipeline.Detector, len(detectors))
	for i, d := range detectors {
		workers[i] = d
	}

	series := storage.NewSeriesBuffer(cfg, log, sqlite.NewFrameRepository(db))
	hub := websocket.NewHubService(cfg, log)
	m := metrics.New()

	orch, err := job.NewOrchestrator(cfg, job.Deps{
		Store:     store,
		Series:    series,
		Notifier:  hub,
		Detectors: workers,
		Annotator: annotate.NewAnnotator(),
		Opener:    video.Opener,
		Muxers:    video.Muxers,
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		detectors.Close()
		db.Close()
		log.Close()
		return nil, err
	}

	return &App{
		config:       cfg,
		logger:       log,
		db:           db,
		detectors:    detectors,
		seriesBuffer: series,
		hubService:   hub,
		orchestrator: orch,
		metrics:      m,
	}, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then drains running jobs and
// releases every resource.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start background services
	background, cancelBackground := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	seriesDone := make(chan struct{})
	go func() {
		a.hubService.Run(background)
		close(hubDone)
	}()
	go func() {
		a.seriesBuffer.Run(background)
		close(seriesDone)
	}()
	go a.orchestrator.Run(background)

	router := route.SetupRoutes(route.Services{
		Orchestrator: a.orchestrator,
		Hub:          a.hubService,
		Series:       a.seriesBuffer,
		Detectors:    a.detectors,
		Metrics:      a.metrics,
	}, a.config, a.logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Video Object Counter\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📁 Uploads: %s, outputs: %s\n", a.config.UploadDirectory, a.config.OutputDirectory)
	fmt.Printf("🤖 AI Model: %s (ready: %t)\n", a.config.ModelPath, a.detectors.Ready())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.logger.Info("Shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		a.logger.Error("HTTP shutdown: %v", serr)
	}
	if serr := a.orchestrator.Shutdown(shutdownCtx); serr != nil {
		a.logger.Error("Orchestrator shutdown: %v", serr)
	}

	cancelBackground()
	<-hubDone
	<-seriesDone

	a.detectors.Close()
	a.db.Close()
	a.logger.Info("Server stopped")
	a.logger.Close()
	return err
}
