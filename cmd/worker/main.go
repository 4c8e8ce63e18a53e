package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/accessdesk/internal/app"
	jobmetrics "github.com/odyssey-erp/accessdesk/internal/jobs"
	"github.com/odyssey-erp/accessdesk/internal/platform/db"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint/users"
	"github.com/odyssey-erp/accessdesk/jobs"
)

func main() {
	enqueue := flag.Bool("enqueue-expiry-report", false, "enqueue one expiry report run and exit")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	if *enqueue {
		client := jobs.NewClient(redisOpts)
		defer client.Close()
		info, err := client.EnqueueExpiryReport(ctx, "manual")
		if err != nil {
			logger.Error("enqueue expiry report", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("enqueued expiry report", slog.String("task_id", info.ID), slog.String("queue", info.Queue))
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnMaxAge})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	userService := users.NewService(users.NewRepository(pool), users.Options{Protected: cfg.ProtectedUsers})
	expiryJob := jobs.NewExpiryReportJob(userService, logger, jobmetrics.NewMetrics(nil))

	reportTask, err := jobs.NewExpiryReportTask("cron")
	if err != nil {
		logger.Error("build expiry report task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskUsersExpiryReport, Handler: expiryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpiryReportCron, Task: reportTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
