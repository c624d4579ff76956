package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"ledger/internal/backend"
	"ledger/internal/cache"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/preview"
	"ledger/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	client, err := backend.NewClient(cfg.BackendURL)
	if err != nil {
		logger.Error("Invalid backend URL", applog.FieldError, err, "backend_url", cfg.BackendURL)
		os.Exit(1)
	}

	previews := preview.NewStore(cfg.PreviewCacheSize, int(cfg.MaxUploadBytes), cfg.PreviewTTL)

	journal := cli.InitJournal(logger, cfg.JournalDBPath)
	publisher := cli.InitPublisher(logger, cfg)
	ingestion := cli.NewIngestionService(logger, journal, publisher)

	opts := ledger.Options{
		DismissDelay: cfg.DismissDelay,
		Previews:     previews,
		Logger:       logger.WithComponent(applog.ComponentLedger),
	}
	if ingestion != nil {
		opts.Observer = ingestion
	}

	sessions := session.NewStore(func(sc session.Context) (*ledger.Controller, error) {
		return ledger.NewController(sc, client, opts)
	}, cfg.SessionTTL)

	janitor := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	janitor.Register("previews", previews)
	janitor.Register("sessions", cache.CleanerFunc(sessions.Sweep))
	janitor.StartCleanup(time.Minute)

	ready := map[string]apphttp.ReadinessCheck{}
	if journal != nil {
		ready["journal"] = journal.Ping
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		CookieSecure:       cfg.CookieSecure,
		SessionTTL:         cfg.SessionTTL,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, apphttp.Deps{
		Auth:     client,
		Sessions: sessions,
		Previews: previews,
		Ready:    ready,
		Logger:   logger.WithComponent(applog.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to build server", applog.FieldError, err)
		os.Exit(1)
	}

	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		janitor.Stop()
		if ingestion != nil {
			if err := ingestion.Close(); err != nil {
				logger.Warn("Ingestion service close error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend_url", cfg.BackendURL,
		"journal", journal != nil,
		"amqp", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
