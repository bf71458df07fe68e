// Package main provides rcmwarehouse, the batch job that rebuilds the hospital revenue
// cycle warehouse from the day's staged extracts.
//
// Configuration comes from the YAML file named by --config (default: RCM_CONFIG_PATH or
// .rcm.yaml) with RCM_* environment overrides; database settings come from DATABASE_*.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
)

// Set at build time with -ldflags.
var (
	version   = "1.0.0-dev"
	gitCommit = "unknown"
)

const name = "rcmwarehouse"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand(logger).ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.Error("Command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
