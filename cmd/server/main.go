// Package main implements the entry point for the provisioning API
// server, which accepts student account requests, works them through a
// durable job queue, and exposes the operator surface for the queue
// kill switch and health monitoring.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"github.com/funnelkit/provision-api/internal/config"
	"github.com/funnelkit/provision-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}

	if *migrateCmd != "" {
		if err := runMigrationCommand(cfg, *migrateCmd, appLogger); err != nil {
			appLogger.Error("migration failed",
				slog.String("command", *migrateCmd),
				slog.String("error", err.Error()))
			log.Fatalf("migration %s failed: %v", *migrateCmd, err)
		}
		return
	}

	ctx := context.Background()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize application", slog.String("error", err.Error()))
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := app.run(ctx); err != nil {
		appLogger.Error("server exited with error", slog.String("error", err.Error()))
		log.Fatalf("server exited with error: %v", err)
	}
}
