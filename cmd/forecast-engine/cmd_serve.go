package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/repo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC API, metrics endpoint and background optimiser",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting mirador-forecast", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.restore(ctx)
	if _, err := a.service.Enqueue(ctx, nil, "startup"); err != nil {
		logger.Warn("initial enqueue failed", slog.Any("error", err))
	}

	server, err := api.NewServer(cfg.Server, api.NewHandler(logger, a.service))
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if err := a.orchestrator.Run(ctx, cfg.Optimization.Interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("optimiser loop exited", slog.Any("error", err))
		}
	}()

	if cfg.Cache.PersistInterval > 0 {
		go persistLoop(ctx, a, cfg.Cache.PersistInterval)
	}

	if cfg.Store.Kind == "file" && cfg.Store.Watch {
		go func() {
			err := repo.WatchFile(ctx, cfg.Store.Path, 0, logger, func() {
				if _, err := a.service.Enqueue(ctx, nil, "file-changed"); err != nil {
					logger.Warn("re-enqueue after file change failed", slog.Any("error", err))
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("file watcher exited", slog.Any("error", err))
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)
	a.persist(shutdownCtx)

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}

	logger.Info("mirador-forecast stopped")
	return nil
}

// persistLoop snapshots the cache whenever its version moved since the last
// write.
func persistLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var persisted uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if v := a.cache.Version(); v != persisted {
				a.persist(ctx)
				persisted = v
			}
		}
	}
}
