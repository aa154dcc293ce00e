package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"paidback/internal/amqp"
	"paidback/internal/backend"
	"paidback/internal/config"
	apphttp "paidback/internal/http"
	applog "paidback/internal/log"
	"paidback/internal/middleware/auth"
	"paidback/internal/middleware/ratelimit"
	"paidback/internal/recon"
	"paidback/internal/session"
	"paidback/internal/store"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Only the remote backend carries a bank feed
	teller, _ := result.Backend.(store.TellerStore)

	// Repair queue is optional; without it failed document patches are
	// surfaced to the caller only.
	var repairs recon.RepairPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without repair queue", "error", err)
		} else {
			defer amqpClient.Close()
			repairs = amqpClient
			logger.Info("Initialized AMQP repair queue",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	reconSvc := recon.NewService(result.Backend, result.Backend, repairs)

	var verifier auth.SessionVerifier
	if cfg.AuthEnabled {
		verifier = session.NewVerifier(cfg.BackendURL, cfg.HTTPTimeout, cfg.VerifyTTL)
	} else {
		logger.Warn("Auth is disabled, serving unauthenticated")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Transactions:   result.Backend,
		Returns:        result.Backend,
		Teller:         teller,
		Recon:          reconSvc,
		Verifier:       verifier,
		MonthReturnIDs: cfg.MonthReturnIDs,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitPerSecond,
			Burst:             cfg.RateLimitBurst,
		},
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting paidback server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
