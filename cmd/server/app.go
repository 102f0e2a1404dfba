package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/funnelkit/provision-api/internal/config"
	"github.com/funnelkit/provision-api/internal/health"
	"github.com/funnelkit/provision-api/internal/platform/email"
	"github.com/funnelkit/provision-api/internal/platform/identity"
	"github.com/funnelkit/provision-api/internal/platform/postgres"
	"github.com/funnelkit/provision-api/internal/provision"
	"github.com/funnelkit/provision-api/internal/queue"
	"github.com/funnelkit/provision-api/internal/retry"
	"github.com/funnelkit/provision-api/internal/store"
)

// application holds the wired dependencies of the running server.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	db        *sql.DB
	validator *validator.Validate

	queue     *queue.Queue
	submitter *provision.Submitter
	mode      *provision.ModeController
	monitor   *health.Monitor
	logStore  store.HealthLogStore
}

// newApplication connects the database, runs pending migrations, and
// wires every component of the provisioning pipeline.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	jobStore := postgres.NewJobStore(db)
	modeStore := postgres.NewModeStore(db)
	logStore := postgres.NewHealthLogStore(db)
	studentStore := postgres.NewStudentStore(db)
	statsRPC := postgres.NewStatsRPC(db)
	reloader := postgres.NewSchemaCacheReloader(db)

	identityClient := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.ServiceKey)

	var emailSender provision.EmailSender
	if cfg.Email.BaseURL != "" {
		emailSender = email.NewClient(cfg.Email.BaseURL, cfg.Email.APIKey, cfg.Email.FromAddress)
	} else {
		logger.Warn("no email backend configured, welcome emails disabled")
	}

	retryOpts := retry.Options{
		MaxRetries:  cfg.Retry.MaxRetries,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMillis) * time.Millisecond,
		Exponential: cfg.Retry.Exponential,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelaySeconds * float64(time.Second)),
	}

	guard := provision.NewGuard(logStore, identityClient, studentStore,
		time.Duration(cfg.Queue.GuardWindowMinutes)*time.Minute)
	provisioner := provision.NewProvisioner(identityClient, studentStore, logStore, emailSender, retryOpts, logger)
	executor := provision.NewExecutor(guard, provisioner, logger)

	q := queue.NewQueue(jobStore, logStore, executor, queue.NewConfig(cfg.Queue), logger)

	modeController := provision.NewModeController(modeStore, logStore,
		time.Duration(cfg.Queue.ModeCacheTTLSeconds)*time.Second, logger)
	submitter := provision.NewSubmitter(modeController, q, guard, provisioner, logStore, logger)

	monitor := health.NewMonitor(health.ProbeSet(statsRPC), reloader, logStore, health.MonitorConfig{
		ProbeTimeout: time.Duration(cfg.Health.ProbeTimeoutSeconds) * time.Second,
		BackoffBase:  time.Second,
		BackoffCap:   time.Duration(cfg.Health.BackoffCapSeconds) * time.Second,
	}, logger)

	return &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		validator: validator.New(),
		queue:     q,
		submitter: submitter,
		mode:      modeController,
		monitor:   monitor,
		logStore:  logStore,
	}, nil
}

// run starts the queue and the HTTP server, blocking until shutdown.
// The health gate runs first so the server does not accept work while
// the schema cache is known stale; a degraded result only delays
// startup, it never blocks it past the attempt budget.
func (app *application) run(ctx context.Context) error {
	if !app.monitor.WaitUntilHealthy(ctx, app.config.Health.MaxWaitAttempts) {
		app.logger.Warn("starting despite unhealthy probes",
			slog.Int("attempts", app.config.Health.MaxWaitAttempts))
	}

	if err := app.queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	err := app.startHTTPServer(ctx, app.setupRouter())
	app.cleanup()
	return err
}

// cleanup releases resources in reverse dependency order.
func (app *application) cleanup() {
	app.queue.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", slog.String("error", err.Error()))
	}
}
