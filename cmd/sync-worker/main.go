package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/physio-quota-tracker/cmd/mainconfig"
	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
	"github.com/wolfman30/physio-quota-tracker/internal/syncjobs"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := mainconfig.BuildStack(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to build sync stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	worker := syncjobs.NewWorker(stack.Processor, stack.Queue, logger,
		syncjobs.WithWorkerCount(cfg.WorkerCount),
		syncjobs.WithReceiveWaitSeconds(20),
		syncjobs.WithReceiveBatchSize(5),
	)
	worker.Start(ctx)
	logger.Info("sync worker started", "workers", cfg.WorkerCount)

	if cfg.SyncScheduleEnabled {
		scheduler, err := syncjobs.NewScheduler(syncjobs.SchedulerConfig{
			Clinics:  stack.Runtime.ClinicStore,
			Jobs:     stack.Publisher,
			Logger:   logger,
			Interval: cfg.SyncInterval,
		})
		if err != nil {
			logger.Error("failed to build scheduler", "error", err)
			os.Exit(1)
		}
		go scheduler.Start(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down sync worker...")
	worker.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("sync worker stopped")
}
