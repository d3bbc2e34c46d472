package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getgoodtape/videoproc/internal/api"
	"github.com/getgoodtape/videoproc/internal/api/handler"
	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/downloader"
	"github.com/getgoodtape/videoproc/internal/logging"
	"github.com/getgoodtape/videoproc/internal/metrics"
	"github.com/getgoodtape/videoproc/internal/proxy"
	"github.com/getgoodtape/videoproc/internal/repository"
	"github.com/getgoodtape/videoproc/internal/service"
	"github.com/getgoodtape/videoproc/internal/worker"
	"github.com/getgoodtape/videoproc/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("videoproc %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()

	logger.Info("starting videoproc",
		"version", Version,
		"build_time", BuildTime,
	)

	for _, dir := range []string{cfg.Storage.OutputPath, cfg.Storage.TempPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create storage directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	// Observability
	m := metrics.New()
	usageRepo, err := repository.NewUsageRepository(cfg.Usage, logger)
	if err != nil {
		logger.Error("failed to open usage log", "error", err)
		os.Exit(1)
	}
	defer usageRepo.Close()

	// Network paths
	network := proxy.NewNetwork(cfg.Proxy, cfg.Conflict, logger, proxy.NetworkOptions{
		Observers: []proxy.AttemptObserver{
			m,
			repository.NewUsageObserver(usageRepo, nil, logger),
		},
		ConflictOptions: []conflict.Option{
			conflict.WithObserver(m.ObserveConflict),
		},
	})
	logger.Info("network paths loaded",
		"endpoints", network.Pool.Len(),
		"families", network.Pool.Families(),
		"conflict_target", network.Detector.Target().Provider,
	)
	if network.Pool.Len() == 0 {
		logger.Warn("no network path configured; every request will fail")
	}

	// External tools
	ytdlp := downloader.NewYtDlp(cfg.Extract.YtDlpPath, logger)
	if !ytdlp.Available() {
		logger.Warn("yt-dlp not found; validate and convert will fail", "binary", ytdlp.Binary())
	}
	var converter downloader.MediaConverter
	if proc, err := ffmpeg.NewProcessor(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath); err != nil {
		logger.Warn("ffmpeg not available; convert will fail", "error", err)
	} else {
		converter = proc
	}
	pipeline := downloader.NewPipeline(ytdlp, converter, cfg.Storage.OutputPath, cfg.Storage.TempPath, logger)

	// Workers
	pool := worker.NewPool(worker.Config{Workers: cfg.Transcode.Concurrency}, logger)
	pool.Start()

	janitor := worker.NewJanitor(worker.JanitorConfig{
		Dir:       cfg.Storage.OutputPath,
		Retention: cfg.Storage.Retention,
		Interval:  cfg.Storage.CleanupInterval,
	}, nil, logger)
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	go janitor.Run(bgCtx)

	// Services
	mediaSvc := service.NewMediaService(network, ytdlp, pipeline, pool, service.MediaServiceConfig{
		Extract:       cfg.Extract,
		Transcode:     cfg.Transcode,
		AllowDirect:   cfg.Proxy.AllowDirect,
		Country:       cfg.Proxy.Country,
		PublicBaseURL: publicBaseURL(cfg.Server),
	}, logger)
	if cfg.Extract.YouTubeAPIKey != "" {
		mediaSvc.WithMetadataFallback(downloader.NewYouTubeAPIExtractor(
			cfg.Extract.YouTubeAPIKey, cfg.Extract.YouTubeAPIURL, cfg.Extract.YouTubeAPITimeout, logger))
		logger.Info("youtube data api fallback enabled")
	}

	// Handlers
	healthHandler := handler.NewHealthHandler(cfg.Storage.OutputPath, []handler.Dependency{
		{Name: "yt-dlp", Check: ytdlp.Version},
		{Name: "ffmpeg", Check: func(ctx context.Context) (string, error) {
			return ffmpeg.Version(ctx, cfg.Transcode.FFmpegPath)
		}},
	}, func() (int, int) {
		s := pool.Stats()
		return s.Busy, s.Workers
	})

	var usageHandler *handler.UsageHandler
	if usageRepo.Enabled() {
		usageHandler = handler.NewUsageHandler(usageRepo, nil)
	}

	router := api.NewRouter(api.Handlers{
		Media:       handler.NewMediaHandler(mediaSvc, logger),
		Files:       handler.NewFilesHandler(cfg.Storage.OutputPath),
		Diagnostics: handler.NewDiagnosticsHandler(mediaSvc, cfg.Conflict.ProbeTimeout+cfg.Conflict.DNSTimeout),
		Usage:       usageHandler,
		Health:      healthHandler,
		Metrics:     m.Handler(),
	}, api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		RequestTimeout: cfg.Server.WriteTimeout,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "auth", cfg.Server.APIKey != "")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Let in-flight conversions finish
	if err := pool.Stop(cfg.Transcode.StopTimeout); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// publicBaseURL is the prefix for download links handed to clients.
func publicBaseURL(s config.ServerConfig) string {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL
	}
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}
