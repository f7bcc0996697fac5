// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/notify"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth service",
		Long: `Start the Gatehouse HTTP API along with the metrics and health
endpoints. Pending database migrations are applied on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("http_addr", defaults.HTTPAddr, "HTTP API listen address")
	cmd.Flags().String("metrics_addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database_url", "", "PostgreSQL connection string (default: DATABASE_URL)")
	cmd.Flags().String("log_format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().Int("password_min_length", defaults.PasswordMinLength, "minimum accepted password length")
	cmd.Flags().Bool("require_verification", defaults.RequireVerification, "require email verification before login")
	cmd.Flags().String("base_url", defaults.BaseURL, "public URL prefix for verification and reset links")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.Connector == nil {
		deps.Connector = func(ctx context.Context, dsn string) (Database, error) {
			return store.Connect(ctx, dsn)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(dsn string) (SchemaMigrator, error) {
			return store.NewMigrator(dsn)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler) APIServer {
			return httpapi.NewServer(addr, handler)
		}
	}

	logger := logging.Setup("gatehouse", version, cfg.LogFormat, nil)
	slog.SetDefault(logger)

	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required (set DATABASE_URL or --database_url)")
	}

	slog.Info("starting gatehouse",
		"http_addr", cfg.HTTPAddr,
		"log_format", cfg.LogFormat,
	)

	pool, err := deps.Connector(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	migrator, err := deps.MigratorFactory(cfg.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	if err := migrator.Up(); err != nil {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	if err := migrator.Close(); err != nil {
		slog.Warn("error closing migrator", "error", err)
	}

	slog.Info("database schema up to date")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obsServer := deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	})

	accounts := postgres.NewAccountRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	activity := observability.NewCountingRecorder(postgres.NewActivityRepository(pool), obsServer.Metrics())
	notifier := observability.NewCountingNotifier(buildNotifier(cfg, logger), obsServer.Metrics())

	svc, err := auth.NewServiceWithLogger(accounts, sessions, auth.NewArgon2idHasher(), activity, notifier, auth.Policy{
		PasswordMinLength:   cfg.PasswordMinLength,
		RequireVerification: cfg.RequireVerification,
	}, logger)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(svc, logger, strings.HasPrefix(cfg.BaseURL, "https://"))
	apiServer := deps.APIServerFactory(cfg.HTTPAddr, handler.Routes(httpapi.NewMetrics(obsServer.Registry())))

	// Start observability server if configured
	obsStarted := false
	if cfg.MetricsAddr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		obsStarted = true
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		if obsStarted {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				slog.Warn("failed to stop observability server during cleanup", "error", stopErr)
			}
		}
		return oops.Code("HTTP_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "http-api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatehouse started")
	slog.Info("gatehouse ready",
		"http_addr", apiServer.Addr(),
		"metrics_addr", cfg.MetricsAddr,
	)

	// Wait for shutdown signal or server failure
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping HTTP API server", "error", err)
	}
	if obsStarted {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// buildNotifier selects the outbound mail transport. Without a configured
// SMTP host, verification and reset links are logged instead of delivered.
func buildNotifier(cfg config.Config, logger *slog.Logger) auth.Notifier {
	if cfg.Mail.Host == "" {
		return notify.NewLogNotifier(cfg.BaseURL, logger)
	}
	return notify.NewSMTPNotifier(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.From, cfg.Mail.Username, cfg.Mail.Password, cfg.BaseURL)
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a server failure shuts down the whole process. It
// exits when an error arrives, the channel closes, or the context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
