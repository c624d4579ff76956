package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"ledger/internal/config"
	applog "ledger/internal/log"
)

func TestSetupLoggerLevel(t *testing.T) {
	logger := SetupLogger("debug")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be enabled")
	}
	logger = SetupLogger("warn")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn")
	}
}

func TestOptionalIntegrationsDisabled(t *testing.T) {
	logger := applog.Discard()
	if j := InitJournal(logger, ""); j != nil {
		t.Fatal("empty path should disable the journal")
	}
	if p := InitPublisher(logger, &config.Config{}); p != nil {
		t.Fatal("empty AMQP URL should disable publishing")
	}
	if svc := NewIngestionService(logger, nil, nil); svc != nil {
		t.Fatal("no journal and no publisher should yield no service")
	}
}

func TestNewIngestionServiceWithJournal(t *testing.T) {
	logger := applog.Discard()
	journal := InitJournal(logger, filepath.Join(t.TempDir(), "journal.db"))
	if journal == nil {
		t.Fatal("journal should open")
	}
	svc := NewIngestionService(logger, journal, nil)
	if svc == nil {
		t.Fatal("service expected")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
