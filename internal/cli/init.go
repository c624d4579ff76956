// Package cli provides the bootstrap steps shared by the binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/amqp"
	"ledger/internal/config"
	applog "ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// SetupLogger initializes text logging on stdout at level and makes it the
// process default.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(level)
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitJournal opens the ingestion journal at dbPath. An empty path disables
// it and returns nil. Any other failure exits the process.
func InitJournal(logger *applog.Logger, dbPath string) *storage.Journal {
	if dbPath == "" {
		logger.Info("Ingestion journal disabled")
		return nil
	}
	journal, err := storage.OpenJournal(dbPath)
	if err != nil {
		logger.Error("Failed to open ingestion journal", applog.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("Ingestion journal ready", "path", dbPath)
	return journal
}

// InitPublisher connects to the broker. Publishing is optional, so an empty
// URL or an unreachable broker returns nil and the app runs without events.
func InitPublisher(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("Ingestion event publishing disabled")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	if err != nil {
		logger.Warn("AMQP unavailable, ingestion events will not be published",
			applog.FieldError, err,
			"exchange", cfg.AMQPExchange)
		return nil
	}
	logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange, "routing_key", cfg.AMQPRoutingKey)
	return client
}

// NewIngestionService builds the attempt recorder. It returns nil when both
// sides are disabled so the controllers run without an observer.
func NewIngestionService(logger *applog.Logger, journal *storage.Journal, publisher *amqp.Client) *services.IngestionService {
	var (
		j services.AttemptJournal
		p services.EventPublisher
	)
	if journal != nil {
		j = journal
	}
	if publisher != nil {
		p = publisher
	}
	if j == nil && p == nil {
		return nil
	}
	return services.NewIngestionService(j, p, logger.WithComponent(applog.ComponentIngestion))
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM after cleanup has
// run, and done is closed once cleanup returned or timeout elapsed.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
