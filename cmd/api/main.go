package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/smartclips-editor/internal/api"
	"github.com/smartclips-editor/internal/config"
	"github.com/smartclips-editor/internal/flight"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/repository/dynamodb"
	"github.com/smartclips-editor/internal/repository/s3"
	"github.com/smartclips-editor/internal/repository/sqlite"
	"github.com/smartclips-editor/internal/service/editor"
	"github.com/smartclips-editor/internal/service/upload"
	"github.com/smartclips-editor/internal/submission"
	"github.com/smartclips-editor/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Infow("starting smartclips editor api",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"endpoint", cfg.Editor.Endpoint,
		"strict", cfg.Editor.Strict,
	)

	ctx := context.Background()

	// Media references; use after release panics in development builds
	previews := media.NewPreviewServer(cfg.Editor.PreviewBaseURL)
	refs := media.NewFactory(previews, cfg.App.IsDevelopment())

	pipeline := submission.NewPipeline(submission.Config{
		Endpoint:    cfg.Editor.Endpoint,
		Timeout:     cfg.Editor.Timeout,
		FallbackURL: cfg.Editor.FallbackURL,
		Strict:      cfg.Editor.Strict,
	}, refs, log)

	// Commit guard
	var guard flight.Guard = flight.NewLocalGuard()
	if cfg.Redis.Enabled {
		redisGuard, err := flight.NewRedisGuard(cfg.Redis, uuid.NewString())
		if err != nil {
			log.Errorw("failed to initialize Redis commit guard", "error", err)
			os.Exit(1)
		}
		defer redisGuard.Close()
		guard = redisGuard
	}

	// Edit history
	var history editor.HistoryStore
	switch cfg.History.Backend {
	case config.HistoryBackendDynamoDB:
		dynamoClient, err := dynamodb.NewClient(ctx, cfg.AWS)
		if err != nil {
			log.Errorw("failed to initialize DynamoDB client", "error", err)
			os.Exit(1)
		}
		history = dynamoClient
	case config.HistoryBackendSQLite:
		store, err := sqlite.New(cfg.History.SQLitePath, log)
		if err != nil {
			log.Errorw("failed to open history database", "error", err, "path", cfg.History.SQLitePath)
			os.Exit(1)
		}
		defer store.Close()
		history = store
	}

	// Publishing is optional; without a bucket local media cannot be published
	var objects upload.ObjectStore
	if cfg.AWS.MediaBucket != "" {
		s3Client, err := s3.NewClient(ctx, cfg.AWS)
		if err != nil {
			log.Errorw("failed to initialize S3 client", "error", err)
			os.Exit(1)
		}
		objects = s3Client
	}

	// Initialize services
	editorService := editor.NewService(refs, pipeline, guard, history, cfg.Editor.WorkDir, log)
	publisher := upload.NewService(objects, cfg.AWS.PublishExpiry, log)

	// Initialize HTTP router
	router := api.NewRouter(api.RouterConfig{
		Editor:         editorService,
		Publisher:      publisher,
		Previews:       previews,
		Logger:         log,
		MaxUploadBytes: cfg.Editor.MaxUploadBytes,
		RequestTimeout: cfg.Editor.Timeout + 30*time.Second,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	// Revoke every preview and remove uploaded files
	editorService.CloseAll()

	log.Infow("server stopped", "live_previews", previews.Live())
}
