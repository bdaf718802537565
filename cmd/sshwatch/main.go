package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/sshwatch/sshwatch/internal/anomaly"
	"github.com/sshwatch/sshwatch/internal/auth"
	"github.com/sshwatch/sshwatch/internal/broadcast"
	"github.com/sshwatch/sshwatch/internal/config"
	"github.com/sshwatch/sshwatch/internal/handlers"
	"github.com/sshwatch/sshwatch/internal/logging"
	"github.com/sshwatch/sshwatch/internal/ratelimit"
	"github.com/sshwatch/sshwatch/internal/repository"
	"github.com/sshwatch/sshwatch/internal/search"
	"github.com/sshwatch/sshwatch/internal/server"
	"github.com/sshwatch/sshwatch/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("sshwatch"))
	logging.SetDefault(logger)

	slog.Info("Starting sshwatch",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)

	// Run database migrations
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		slog.Error("Failed to initialize migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("Failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if version, dirty, err := m.Version(); err != nil {
		slog.Warn("Could not get migration version", slog.String("error", err.Error()))
	} else {
		slog.Info("Database migration complete",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}

	// Open the event store
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.URL)
	cancel()
	if err != nil {
		slog.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	// Open the search index
	osClient, err := search.NewOpenSearchClient(cfg.OpenSearch)
	if err != nil {
		slog.Error("Failed to connect to OpenSearch", slog.String("error", err.Error()))
		os.Exit(1)
	}
	indexer := search.NewIndexer(osClient)

	ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
	if err := indexer.EnsureIndex(ctx); err != nil {
		slog.Warn("Failed to initialize search index",
			slog.String("error", err.Error()))
		slog.Warn("Events may fail to index until OpenSearch is properly configured")
	}
	cancel()

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			slog.Warn("Failed to initialize Redis rate limiter, continuing without",
				slog.String("error", err.Error()))
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow),
			)
			rateLimiter = limiter
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
	}
	defer rateLimiter.Close()

	// Session service
	signingKey, err := auth.LoadOrCreateKeys(cfg.Auth.KeyDir)
	if err != nil {
		slog.Error("Failed to load signing keys", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authService := auth.NewService(repo, auth.NewTokenGenerator(signingKey, cfg.Auth.TokenTTL))

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = authService.EnsureInitialAdmin(ctx, cfg.Auth.InitialAdminPass)
	cancel()
	if err != nil {
		slog.Error("Failed to bootstrap admin account", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Broadcast hub, scorer, and ingestion pipeline
	hub := broadcast.NewHub(broadcast.DefaultBufferSize)
	defer hub.Close()

	scorer := anomaly.NewScorer(repo, cfg.Anomaly)
	ingestor := service.NewIngestor(repo, indexer, scorer, hub, logger)

	// HTTP surface
	eventsHandler := handlers.NewEventsHandler(ingestor, repo, indexer, rateLimiter,
		cfg.Ingestion.MaxBatchBytes, logger)
	streamHandler := handlers.NewStreamHandler(hub, logger)
	authHandler := handlers.NewAuthHandler(authService, logger)
	healthHandler := handlers.NewHealthHandler(repo)
	router := server.NewRouter(eventsHandler, streamHandler, authHandler, healthHandler,
		auth.NewMiddleware(authService), cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("sshwatch listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slog.Info("Server stopped")
}
