package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raw-organizer/internal/cluster"
	"raw-organizer/internal/database"
	"raw-organizer/internal/embedding"
	"raw-organizer/internal/filesystem"
	"raw-organizer/internal/handlers"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/media"
	"raw-organizer/internal/memory"
	"raw-organizer/internal/metrics"
	"raw-organizer/internal/middleware"
	"raw-organizer/internal/pipeline"
	"raw-organizer/internal/startup"

	"github.com/gorilla/mux"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	// Memory limit first, before any RAW decoding allocates.
	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(exitOK)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(exitUsage)
	}

	os.Exit(run(config, memResult))
}

func run(config *startup.Config, memResult memory.ConfigResult) int {
	startup.PrintBanner()
	startup.LogMemoryConfig(memResult)
	config.Log()

	if err := startup.PrepareDirectories(config); err != nil {
		logging.Error("Startup failed: %v", err)
		return exitFailed
	}

	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"source": config.Dir,
		"cache":  config.CacheDir,
		"output": config.OutputDir,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(ctx, cancel)

	renderer, cleanup := newRenderer(config)
	defer cleanup()

	extractor, err := newExtractor(config)
	if err != nil {
		logging.Error("Extractor error: %v", err)
		return exitFailed
	}

	fine, err := cluster.NewAlgorithm(config.Algorithm, config.Fine.Params())
	if err != nil {
		logging.Error("Clustering error: %v", err)
		return exitFailed
	}
	coarse, err := cluster.NewAlgorithm(config.Algorithm, config.Coarse.Params())
	if err != nil {
		logging.Error("Clustering error: %v", err)
		return exitFailed
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	progress := pipeline.NewProgress()
	opts := []pipeline.Option{
		pipeline.WithGate(monitor),
		pipeline.WithProgress(progress),
	}

	if !config.NoLedger {
		dbStart := time.Now()
		db, err := database.New(ctx, config.Database)
		if err != nil {
			logging.Error("Failed to open run ledger: %v", err)
			return exitFailed
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Warn("failed to close run ledger: %v", err)
			}
		}()
		startup.LogLedgerInit(db.Path(), time.Since(dbStart))
		opts = append(opts, pipeline.WithLedger(db))

		if config.MetricsAddr != "" {
			collector := metrics.NewCollector(db, 15*time.Second)
			collector.Start()
			defer collector.Stop()
		}
	}

	if config.MetricsAddr != "" {
		srv := startMetricsServer(config.MetricsAddr, handlers.New(progress))
		defer shutdownServer(srv)
	}

	p := pipeline.New(pipeline.Config{
		Root:          config.Dir,
		CacheDir:      config.CacheDir,
		OutputDir:     config.OutputDir,
		ThumbnailSize: config.ThumbnailSize,
		Workers:       config.Workers,
		MergeWorkers:  config.MergeWorkers,
		Fine:          fine,
		Coarse:        coarse,
		Prefix:        config.Prefix,
		DryRun:        config.DryRun,
		ClearCache:    config.ClearCache,
	}, renderer, extractor, opts...)

	summary, err := p.Run(ctx)
	if summary != nil {
		summary.Log()
	}
	if err != nil {
		logging.Error("Run failed: %v", err)
		return exitFailed
	}
	return exitOK
}

// newRenderer returns the configured RAW renderer and a cleanup function.
func newRenderer(config *startup.Config) (media.Renderer, func()) {
	preview := media.NewPreviewRenderer(config.JPEGQuality)
	if config.Renderer != startup.RendererVips {
		startup.LogVipsInit(false, false)
		return preview, func() {}
	}

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips initialization failed: %v", err)
	}
	startup.LogVipsInit(true, media.IsVipsAvailable())
	return media.NewVipsRenderer(config.JPEGQuality, preview), media.ShutdownVips
}

func newExtractor(config *startup.Config) (embedding.Extractor, error) {
	switch config.Extractor.Name {
	case startup.ExtractorGrid:
		return embedding.GridExtractor{}, nil
	case startup.ExtractorCommand:
		if len(config.Extractor.Command) == 0 {
			return nil, fmt.Errorf("%w: the command extractor needs a command", startup.ErrInvalidConfig)
		}
		return &embedding.CommandExtractor{
			Command: config.Extractor.Command[0],
			Args:    config.Extractor.Command[1:],
			Model:   config.Extractor.Model,
			Timeout: config.Extractor.Timeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown extractor %q", startup.ErrInvalidConfig, config.Extractor.Name)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	return r
}

func startMetricsServer(addr string, h *handlers.Handlers) *http.Server {
	router := setupRouter(h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Logger(middleware.DefaultLoggingConfig())(router),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	startup.LogMetricsServerStarted(addr, router)
	return srv
}

func shutdownServer(srv *http.Server) {
	startup.LogShutdownStep("Shutting down metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Metrics server shutdown error: %v", err)
		return
	}
	startup.LogShutdownStepComplete("Metrics server stopped")
}

// handleShutdown cancels the run on SIGINT or SIGTERM. Work already written
// stays valid; rerunning resumes from the cache.
func handleShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
		cancel()
	case <-ctx.Done():
	}
}
