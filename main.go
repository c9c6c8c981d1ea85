package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/forecasthq/forecast-submitter/pkg/audit"
	"github.com/forecasthq/forecast-submitter/pkg/chainrpc"
	"github.com/forecasthq/forecast-submitter/pkg/config"
	"github.com/forecasthq/forecast-submitter/pkg/endpoints"
	"github.com/forecasthq/forecast-submitter/pkg/forecast"
	"github.com/forecasthq/forecast-submitter/pkg/gate"
	"github.com/forecasthq/forecast-submitter/pkg/health"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/models"
	"github.com/forecasthq/forecast-submitter/pkg/scheduler"
	"github.com/forecasthq/forecast-submitter/pkg/signer"
	"github.com/forecasthq/forecast-submitter/pkg/submitter"
)

func main() {
	// Load configuration from environment variables; configuration errors are
	// the only non-zero exits
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)
	runID := uuid.NewString()
	lg.Info("Starting forecast submitter, run %s", runID)

	pool, err := endpoints.NewPool(cfg.Endpoints, cfg.MaxEndpointFailures, lg)
	if err != nil {
		log.Fatalf("Failed to build endpoint pool: %v", err)
	}

	txSigner, err := signer.New(cfg.PrivateKey)
	if err != nil {
		log.Fatalf("Failed to initialize signer: %v", err)
	}
	lg.Info("Submitting as %s to topic %s every %v", txSigner.Address(), cfg.TopicID, cfg.CadencePeriod)

	auditStore, err := audit.Open(cfg.AuditDBPath, lg)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			lg.Error("Failed to close audit store: %v", err)
		}
	}()

	client := chainrpc.New(cfg.RPCTimeout, lg)
	predictor := forecast.New(cfg.DataSourceURL, cfg.RPCTimeout, lg)

	windowGate, err := gate.New(gate.Config{
		TopicID:            cfg.TopicID,
		Actor:              txSigner.Address(),
		MinStake:           cfg.MinStake,
		PermissiveFallback: cfg.PermissiveFallback,
	}, pool, client, lg)
	if err != nil {
		log.Fatalf("Failed to build window gate: %v", err)
	}

	attemptCfg := submitter.Config{
		TopicID:              cfg.TopicID,
		Actor:                txSigner.Address(),
		MaxBroadcastAttempts: cfg.MaxBroadcastAttempts,
	}
	newAttempt := func(slot models.SubmissionSlot) scheduler.AttemptRunner {
		return submitter.New(attemptCfg, slot, pool, client, predictor, txSigner, lg)
	}

	sched, err := scheduler.New(scheduler.Config{
		Period:   cfg.CadencePeriod,
		RunUntil: cfg.RunUntil,
		Actor:    txSigner.Address(),
	}, windowGate, newAttempt, auditStore, lg)
	if err != nil {
		log.Fatalf("Failed to build scheduler: %v", err)
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		lg.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	// Start health monitoring server
	healthServer := health.NewServer(cfg.MetricsPort, runID, pool, auditStore, lg)
	go healthServer.Start()

	// Run the cadence loop; a nil return is a clean stop (deadline or signal)
	if err := sched.Run(ctx); err != nil {
		lg.Error("Scheduler stopped with error: %v", err)
		os.Exit(1)
	}
	lg.Info("Scheduler stopped cleanly, run %s", runID)
}
