package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zatekoja/patientinsights/internal/adapters/events"
	"github.com/zatekoja/patientinsights/internal/api/handlers"
	"github.com/zatekoja/patientinsights/internal/api/routes"
	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		logger := observability.GetLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.OTEL.Enabled {
			shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
			} else {
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(ctx); err != nil {
						logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
					}
				}()
				logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
			}
		}

		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		// Record-update events only matter when another process owns the
		// records, which in practice means a shared Redis.
		var invalidator handlers.PatientInvalidator = a.narrativeCache
		if cfg.Events.Enabled && a.redis != nil {
			eventBus := events.NewRedisEventBus(a.redis)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error().Err(err).Msg("error closing event bus")
				}
			}()

			invalidation := services.NewCacheInvalidationService(a.narrativeCache, eventBus, cfg.Events.Channel)
			if err := invalidation.Start(); err != nil {
				return err
			}
			defer invalidation.Stop()
			invalidator = invalidation
		}

		checks := map[string]handlers.HealthCheck{}
		if a.redis != nil {
			checks["redis"] = a.redis.Ping
		}

		router := routes.NewRouter(
			handlers.NewHealthHandler(checks),
			handlers.NewAnalysisHandler(a.analysis),
			handlers.NewNarrativeHandler(a.analysis, a.narratives, invalidator, a.narrativeCache),
			handlers.NewExplanationHandler(a.analysis, a.explainer),
			handlers.NewReportHandler(a.reports),
			cfg.Server.AllowedOrigins,
			cfg.Server.RequestTimeout,
			a.metrics,
		)

		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router.SetupRoutes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", server.Addr).Msg("server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
