package main

import (
	"log/slog"
	"os"

	"github.com/dinocore1/cancomms/internal/logging"
)

func setupLogger(cfg *appConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if cfg.verbose {
		lvl = slog.LevelDebug
	}
	l := logging.New(cfg.logFormat, lvl, os.Stderr).With("app", "cancomms")
	logging.Set(l)
	return l
}
