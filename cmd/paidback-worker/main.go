package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"paidback/internal/amqp"
	"paidback/internal/backend"
	"paidback/internal/config"
	applog "paidback/internal/log"
	"paidback/internal/recon"
	"paidback/internal/session"
	"paidback/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting paidback-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the repair worker")
		os.Exit(1)
	}
	if cfg.DataBackend == "remote" && cfg.WorkerToken == "" {
		logger.Error("WORKER_TOKEN is required to replay repairs against the remote backend")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backend.Config{
		Type:         backend.BackendType(cfg.DataBackend),
		BackendURL:   cfg.BackendURL,
		HTTPTimeout:  cfg.HTTPTimeout,
		SQLiteDBPath: cfg.SQLiteDBPath,
	})
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// The worker replays patches; failures go back to the queue, never back
	// to the publisher, so the service gets no repair publisher here.
	reconSvc := recon.NewService(result.Backend, result.Backend, nil)
	var sess *session.Session
	if cfg.WorkerToken != "" {
		sess = &session.Session{Token: cfg.WorkerToken, Name: "repair-worker"}
	}
	repairWorker := worker.NewRepairWorker(reconSvc, sess)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeRepairs(gctx, repairWorker.HandleRepairMessage)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
