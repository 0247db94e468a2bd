package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/config"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/events"
	"github.com/blackmichael/postboard/internal/httpserver"
	"github.com/blackmichael/postboard/internal/postgres"
	"github.com/blackmichael/postboard/internal/sqlite"
	"github.com/blackmichael/postboard/internal/storage"
	"github.com/blackmichael/postboard/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// repository is what the server needs from a post store beyond the domain
// port.
type repository interface {
	domain.PostRepository
	Migrate(ctx context.Context) error
	Close() error
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "postboard",
		Environment: cfg.Env,
		Insecure:    cfg.IsLocal(),
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("error shutting down tracer", "error", err)
		}
	}()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to database", "driver", cfg.DatabaseDriver)

	images, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("create image storage: %w", err)
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}

	hub := events.NewHub(cfg.AllowedOrigins, logger)
	defer hub.Close()
	publishers := events.Fanout{hub}

	if cfg.NatsURL != "" {
		nc, err := events.ConnectNATS(cfg.NatsURL, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		publishers = append(publishers, events.NewNatsPublisher(nc, "", logger))
		logger.Info("publishing post events to nats", "url", cfg.NatsURL)
	}

	postService, err := domain.NewPostService(repo, images, publishers, domain.Rules{
		MaxImageBytes: cfg.MaxUploadBytes,
	}, logger)
	if err != nil {
		return fmt.Errorf("create post service: %w", err)
	}

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start background orphan image sweep
	if cfg.SweepInterval > 0 {
		go postService.StartSweepJob(ctx, cfg.SweepInterval, cfg.SweepGrace)
	}

	server, err := httpserver.NewServer(cfg, postService, hub, tokens, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	logger.Info("server started", "port", cfg.Port, "env", cfg.Env, "storage", images.Root())

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsLocal() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func openRepository(ctx context.Context, cfg *config.Config) (repository, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return postgres.NewRepository(ctx, cfg.DatabaseURL)
	default:
		return sqlite.NewRepository(cfg.DatabaseURL)
	}
}
