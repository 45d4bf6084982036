// Package main is the entry point for the userauth HTTP server.
//
// main stays minimal:
// 1. Read configuration from the environment (internal/config)
// 2. Create the logger
// 3. Build the server and start it
//
// All actual logic lives in internal/ packages. cmd/authctl is the second
// entry point, an admin CLI over the same database.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/userauth/internal/config"
	"github.com/sakif/userauth/internal/repository/sqlite"
	"github.com/sakif/userauth/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Missing JWT_SECRET or nonsense values stop the process here, before
	// anything is opened.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_LEVEL picks the level, LOG_FORMAT=json switches to JSON lines.
	logger := config.NewLogger(os.Stdout, cfg.SlogLevel(), cfg.LogFormat)
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll is `mkdir -p`; the SQLite driver will not create parents.
	if cfg.DBPath != sqlite.MemoryPath {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if !cfg.GoogleEnabled() {
		logger.Info("GOOGLE_CLIENT_ID not set, Google sign-in is disabled")
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
