package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"accident-forecast/internal/app"
	"accident-forecast/internal/config"
	"accident-forecast/internal/handlers"
	"accident-forecast/internal/services"
	"accident-forecast/pkg/logging"
	"accident-forecast/pkg/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"_CONFIG"), "Path to a YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger("forecast-api", cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting accident forecast API server", logging.Fields{
		"version":        app.Version,
		"server_address": cfg.Server.Address(),
		"dataset_source": cfg.Dataset.Source,
		"model_order":    cfg.Model.Order.String(),
	})

	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	// Load the dataset and fit the model once; failures leave the service degraded
	predictions := app.Bootstrap(ctx, cfg, logger, metricsCollector)
	statistics := services.NewStatisticsService(logger, metricsCollector)

	handler := handlers.NewForecastHandler(predictions, statistics, logger, metricsCollector)
	router := handlers.NewRouter(handler, logger, metricsCollector)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods("GET")
	}

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
			"ready":   predictions.GetStatus().IsReady(),
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{
			"timeout": cfg.Server.ShutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal(context.Background(), "[SERVER_ERROR] Server failed", logging.Fields{}, err)
	}

	logger.Info(context.Background(), "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
