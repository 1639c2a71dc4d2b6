package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mivora/stagesync/internal/app"
	"github.com/mivora/stagesync/internal/config"
	"github.com/mivora/stagesync/internal/log"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		logLevel   = flag.String("log-level", "", "log level override (debug, info, warn, error)")
		addr       = flag.String("addr", "", "HTTP listen address override")
	)
	flag.Parse()

	bootLogger := log.New("info")
	cfg, resolvedPath, err := config.Load(bootLogger, *configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", resolvedPath).Msg("failed to load config")
	}

	cfg.UpdateFrom(config.Config{Addr: *addr, LogLevel: *logLevel})
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}

	logger.Info().Str("addr", cfg.Addr).Str("config", resolvedPath).Msg("starting stagesync bus server")
	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
