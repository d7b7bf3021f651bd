package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/thumbnailer/internal/config"
	"github.com/dunamismax/thumbnailer/internal/job"
	"github.com/dunamismax/thumbnailer/internal/logging"
	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/storage"
	"github.com/dunamismax/thumbnailer/internal/telemetry"
	"github.com/dunamismax/thumbnailer/internal/webhook"
	"github.com/dunamismax/thumbnailer/internal/worker"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Optional configuration file (yaml, json or toml).")
	pflag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, syncLogs, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer syncLogs()
	logger = logger.Named("worker")

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:  "thumbnailer-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := processor.Startup(); err != nil {
		return fmt.Errorf("start image engine: %w", err)
	}
	defer processor.Shutdown()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = storageClient.EnsureBucket(ensureCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure bucket %s: %w", storageClient.Bucket(), err)
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	}, logger.Named("webhook"))

	srv := worker.NewServer(logger, cfg.Queue, cfg.Worker, webhookClient,
		job.WithStorage(storageClient),
		job.WithHTTPClient(&http.Client{Timeout: cfg.Input.HTTPTimeout}),
		job.WithMaxInputBytes(cfg.Input.MaxBytes),
		job.WithEngine(cfg.Engine.Name, processor.Options{
			JPEGQuality:    cfg.Engine.JPEGQuality,
			PreserveAlpha:  cfg.Engine.PreserveAlpha,
			AlphaMaskColor: processor.DefaultOptions().AlphaMaskColor,
		}),
	)

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           metricsMux(srv.MetricsHandler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.Worker.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
		zap.String("engine", cfg.Engine.Name),
	)

	// asynq's Run traps SIGINT and SIGTERM itself and drains in-flight tasks
	// before returning.
	runErr := srv.Run()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown failed", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("worker failed: %w", runErr)
	}
	logger.Info("worker stopped")
	return nil
}

func metricsMux(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
