package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

const retryDelay = 5 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	journal := cli.InitJournal(logger, cfg.JournalDBPath)

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	// The worker only records; republishing would feed its own queue.
	recorder := services.NewIngestionService(journal, nil, logger.WithComponent(applog.ComponentIngestion))
	jw := worker.NewJournalWorker(recorder, logger.WithComponent(applog.ComponentJournal))

	runCtx, stopRun := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			err := jw.Run(runCtx, consumer, cfg.WorkerPrefetch)
			if runCtx.Err() != nil {
				return
			}
			if errors.Is(err, amqp.ErrDeliveriesClosed) {
				logger.Warn("Delivery channel closed, reconnecting", "retry_in", retryDelay)
			} else {
				logger.Error("Event consumption failed", applog.FieldError, err, "retry_in", retryDelay)
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		stopRun()
		select {
		case <-stopped:
		case <-ctx.Done():
		}
		if err := consumer.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if err := recorder.Close(); err != nil {
			logger.Warn("Journal close error", applog.FieldError, err)
		}
	})

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
