package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/severstroy/matcat"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables (MATCAT_ prefix)
  4. Command line flags

Environment variables:
  MATCAT_HOST                  Server host to bind to (default: 0.0.0.0)
  MATCAT_PORT                  Server port to listen on (default: 8080)
  MATCAT_LOG_LEVEL             Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  MATCAT_LOG_FORMAT            Log format: text, json (default: text)
  MATCAT_ENVIRONMENT           development or production (default: development)
  MATCAT_DB_URL                Primary database URL (default: in-memory SQLite)
  MATCAT_ENABLE_FALLBACK_DATABASES  Share the primary database with the SQL tier

  MATCAT_CACHE_REDIS_ADDR      Redis address; empty selects the in-memory cache
  MATCAT_PROVIDER_API_KEY      AI provider key for embeddings and parsing
  MATCAT_PROVIDER_BASE_URL     AI provider base URL
  MATCAT_TUNNEL_ENABLED        Run the SSH tunnel supervisor for the SQL tier
  MATCAT_RATELIMIT_RPM         Per-client requests per minute
  MATCAT_BATCH_WORKER_POOL     Enrichment worker count`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on")

	return cmd
}

func runServe(envFile, host string, port int) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	env, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags take precedence over environment variables.
	if host != "" {
		env.Host = host
	}
	if port != 0 {
		env.Port = port
	}
	cfg := env.ToAppConfig()

	logger := log.NewLogger(cfg)
	logger.SetDefault()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	logger.Slog().LogAttrs(context.Background(), slog.LevelInfo, "starting matcat", attrs...)

	client, err := matcat.New(
		matcat.WithConfig(cfg),
		matcat.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create matcat client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close matcat client", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- client.StartHTTP() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	return nil
}
