// cmd/meal-snap/serve.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcp-meal-snap/internal/analysis"
	"mcp-meal-snap/internal/auth"
	"mcp-meal-snap/internal/cache"
	"mcp-meal-snap/internal/config"
	"mcp-meal-snap/internal/imagestore"
	"mcp-meal-snap/internal/logger"
	"mcp-meal-snap/internal/server"
	"mcp-meal-snap/internal/service"
	"mcp-meal-snap/internal/storage"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	host   string
	port   int
	dbPath string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = opts.host
			}
			if flags.Changed("port") {
				cfg.Server.Port = opts.port
			}
			if flags.Changed("db-path") {
				cfg.Database.Path = opts.dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "Host address (overrides config)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port for HTTP transport (overrides config)")
	cmd.Flags().StringVar(&opts.dbPath, "db-path", "", "Database path (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Component: "meal-snap"})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	opts := service.Options{
		Analyzer: analysis.NewWebhookClient(analysis.ClientOptions{
			WebhookURL:   cfg.Analysis.WebhookURL,
			Timeout:      cfg.Analysis.Timeout,
			MaxAttempts:  cfg.Analysis.MaxAttempts,
			RetryDelay:   cfg.Analysis.RetryDelay,
			MockFallback: cfg.Analysis.MockFallback,
			Logger:       log.With("component", "analysis"),
		}),
		Store:        store,
		Location:     loc,
		Balance:      cfg.Meals.Balance,
		MaxImageSize: cfg.Analysis.MaxImageSize,
		Logger:       log.With("component", "service"),
	}
	if cfg.Analysis.WebhookURL == "" {
		log.Warn("no analysis webhook configured", "mock_fallback", cfg.Analysis.MockFallback)
	}

	if cfg.Images.Bucket != "" {
		images, err := imagestore.NewS3StoreFromEnv(ctx, cfg.Images.Region, cfg.Images.Bucket,
			cfg.Images.KeyPrefix, cfg.Images.PublicBaseURL)
		if err != nil {
			return err
		}
		opts.Images = images
		log.Info("storing meal photos in S3", "bucket", cfg.Images.Bucket, "region", cfg.Images.Region)
	}

	if cfg.Redis.Addr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := cache.Connect(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Warn("report cache disabled", "error", err)
		} else {
			defer client.Close()
			opts.Cache = cache.NewRedisReportCache(client, cfg.Redis.TTL)
			log.Info("caching daily reports in redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
		}
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, only anonymous analysis is available",
			"allow_anonymous", cfg.Auth.AllowAnonymous)
	}

	srv := server.NewMealSnapServer(&server.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
		Auth: auth.Options{
			Secret:         []byte(cfg.Auth.JWTSecret),
			AllowAnonymous: cfg.Auth.AllowAnonymous,
		},
		MaxImageSize: cfg.Analysis.MaxImageSize,
		HealthCheck:  store.Ping,
	}, service.NewRecordService(opts), log.With("component", "server"))

	return run(ctx, srv, log)
}

// run blocks until a shutdown signal arrives or the server fails.
func run(ctx context.Context, srv *server.MealSnapServer, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error("server error", "error", serveErr)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
