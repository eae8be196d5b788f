package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskdesk/internal/config"
	"taskdesk/internal/export"
	"taskdesk/internal/models"
	"taskdesk/internal/server"
	"taskdesk/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("invalid .env file", slog.String("error", err.Error()))
		os.Exit(2)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	backend, err := store.OpenBackend(cfg.DataPath, logger)
	if err != nil {
		logger.Error("unable to open data file", slog.String("path", cfg.DataPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	tasks := store.Open(ctx, backend, logger)
	defer tasks.Close()

	if cfg.ExportPath != "" {
		if err := export.WriteFile(cfg.ExportPath, tasks.List(models.TaskFilter{})); err != nil {
			logger.Error("export failed", slog.String("error", err.Error()))
			tasks.Close()
			os.Exit(1)
		}
		logger.Info("tasks exported", slog.String("path", cfg.ExportPath), slog.Int("count", tasks.Count()))
		return
	}

	srv := server.New(tasks, logger, cfg.StaticDir)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("serving tasks", slog.String("data", cfg.DataPath))
	if err := serve(httpServer, quit, logger); err != nil {
		logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		tasks.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
}
