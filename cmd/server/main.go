package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prepworks/examimport/internal/importer"
	"github.com/prepworks/examimport/internal/platform/cache"
	"github.com/prepworks/examimport/internal/platform/config"
	"github.com/prepworks/examimport/internal/platform/database"
	"github.com/prepworks/examimport/internal/profile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := importer.NewPostgresStore(db.Pool)
	if err != nil {
		slog.Error("failed to create job store", "error", err)
		os.Exit(1)
	}

	var reporter importer.ProgressReporter = importer.NopReporter{}
	var progressCache *importer.CacheReporter
	c, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		// Progress caching is an enhancement; the job table remains the
		// source of truth, so start without it.
		slog.Warn("cache unavailable, progress served from the database", "error", err)
	} else if c != nil {
		defer c.Close()
		progressCache = importer.NewCacheReporter(c.Client)
		reporter = progressCache
	}

	profiles, err := profile.NewLoader(cfg.Profile.Dir)
	if err != nil {
		slog.Error("failed to load calibration profiles", "error", err)
		os.Exit(1)
	}

	engine, err := importer.NewEngine(importer.EngineConfig{
		Store:          store,
		Reporter:       reporter,
		Profiles:       profiles,
		StorageRoot:    cfg.Storage.Root,
		RenderScale:    cfg.Render.Scale,
		DefaultProfile: cfg.Profile.Default,
	})
	if err != nil {
		slog.Error("failed to create import engine", "error", err)
		os.Exit(1)
	}

	worker, err := importer.NewWorker(importer.WorkerConfig{
		Store:        store,
		Engine:       engine,
		Identity:     cfg.Worker.Identity,
		PollInterval: cfg.Worker.PollInterval,
		LeaseTTL:     cfg.Worker.LeaseTTL,
	})
	if err != nil {
		slog.Error("failed to create import worker", "error", err)
		os.Exit(1)
	}

	workerDone := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(workerDone)
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newMux(&server{store: store, progress: progressCache, db: db}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	<-workerDone
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
