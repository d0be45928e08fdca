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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/physio-quota-tracker/cmd/mainconfig"
	"github.com/wolfman30/physio-quota-tracker/internal/api/router"
	"github.com/wolfman30/physio-quota-tracker/internal/cases"
	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
	httpmiddleware "github.com/wolfman30/physio-quota-tracker/internal/http/middleware"
	"github.com/wolfman30/physio-quota-tracker/internal/syncjobs"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physio-quota-tracker API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	stack, err := mainconfig.BuildStack(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer stack.Close()

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	rt := stack.Runtime

	r := router.New(&router.Config{
		Logger:             logger,
		ClinicHandler:      clinic.NewHandler(rt.ClinicStore, logger),
		CasesHandler:       cases.NewHandler(rt.Cases, logger),
		SyncLogHandler:     synclog.NewHandler(rt.SyncLogs, logger),
		SyncHandler:        syncjobs.NewHandler(rt.Service, stack.Publisher, logger),
		AuthSecret:         cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		HealthChecks: map[string]router.HealthCheck{
			"postgres": stack.DB.Pool.Ping,
			"redis": func(ctx context.Context) error {
				return stack.Redis.Ping(ctx).Err()
			},
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // inline syncs can take a while
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		limiter.RunEviction(gctx, 5*time.Minute)
		return nil
	})

	// The in-memory queue is only drained by a worker in this process.
	if cfg.InlineSyncWorker || cfg.UseMemoryQueue {
		worker := syncjobs.NewWorker(stack.Processor, stack.Queue, logger,
			syncjobs.WithWorkerCount(cfg.WorkerCount),
		)
		worker.Start(gctx)
		g.Go(func() error {
			worker.Wait()
			return nil
		})
		logger.Info("inline sync worker started", "workers", cfg.WorkerCount)
	}

	if cfg.SyncScheduleEnabled {
		scheduler, err := syncjobs.NewScheduler(syncjobs.SchedulerConfig{
			Clinics:  rt.ClinicStore,
			Jobs:     stack.Publisher,
			Logger:   logger,
			Interval: cfg.SyncInterval,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			scheduler.Start(gctx)
			return nil
		})
	}

	return g.Wait()
}
