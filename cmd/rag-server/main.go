// Package main provides the RAG server entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bull/rag-server/internal/app"
	"github.com/bull/rag-server/internal/config"
	"github.com/bull/rag-server/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("RAG_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil {
		log.Debug("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	a.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "addr", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	if cfg.Server.Mode == "stdio" {
		// Stdio mode: MCP over stdin/stdout for local clients, HTTP stays up
		// alongside it for health checks and the REST API.
		log.Info("Starting MCP server (stdio mode)")
		if err := a.MCP.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("MCP server error", "error", err)
		}
	} else {
		select {
		case <-ctx.Done():
		case listenErr = <-serveErr:
		}
	}

	log.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	// serveErr is closed once ListenAndServe returns, so a second receive
	// after the select is safe.
	if listenErr == nil {
		listenErr = <-serveErr
	}
	if listenErr != nil {
		errs = append(errs, fmt.Errorf("http server: %w", listenErr))
	}
	return errors.Join(errs...)
}
