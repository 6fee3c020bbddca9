package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"media-jobs/internal/bucket"
	"media-jobs/internal/config"
	"media-jobs/internal/firehose"
	"media-jobs/internal/logging"
	"media-jobs/internal/store"
	"media-jobs/internal/telemetry"
	workerproc "media-jobs/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, "worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	fh := firehose.NewPublisher(cfg, logger)
	defer fh.Close()

	buckets, err := bucket.New(ctx, cfg)
	if err != nil {
		logger.Fatal("bucket client", zap.Error(err))
	}

	health := workerproc.NewHealthStatus()
	if cfg.RequireGPU {
		go workerproc.RunGPUHealthCheck(ctx, health, cfg.GPUHealthCheckInterval, logger)
	}

	processor := workerproc.NewProcessor(cfg, st, fh, health, logger)
	downloadHandler := workerproc.NewDownloadHandler(cfg, buckets, st, logger)
	processor.RegisterHandler("media_download", downloadHandler.Handle)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("worker started",
		zap.String("worker", cfg.WorkerName),
		zap.String("cluster", cfg.ClusterName),
		zap.Strings("job_types", cfg.JobTypes),
		zap.Duration("lease", cfg.LeaseDuration))

	err = processor.Run(ctx)
	if errors.Is(err, workerproc.ErrUnhealthy) {
		logger.Error("worker unhealthy, exiting for reschedule")
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
