package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/storage"
)

type fakePublisher struct {
	events []*amqp.IngestionEvent
	err    error
	closed bool
}

func (p *fakePublisher) PublishIngestionEvent(_ context.Context, ev *amqp.IngestionEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestIngestionService_JournalsAttempt(t *testing.T) {
	ctx := context.Background()
	journal, err := storage.OpenJournal(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	pub := &fakePublisher{}
	svc := NewIngestionService(journal, pub, applog.Discard())
	defer svc.Close()

	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	events := []ledger.Event{
		{Kind: ledger.EventUploadStarted, AttemptID: "a1", UserID: 9, FileName: "r.jpg", FileSize: 10, At: at},
		{Kind: ledger.EventUploaded, AttemptID: "a1", UserID: 9},
		{Kind: ledger.EventFailed, AttemptID: "a1", UserID: 9, Stage: ledger.StageProcess, Message: "Upload failed"},
	}
	for _, e := range events {
		svc.Observe(ctx, e)
	}

	got, err := journal.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != storage.StatusFailed || got.Stage != "process" || got.Message != "Upload failed" {
		t.Fatalf("unexpected journal row: %+v", got)
	}
	if !got.StartedAt.Equal(at) || got.FileName != "r.jpg" {
		t.Fatalf("unexpected start data: %+v", got)
	}

	svc.Observe(ctx, ledger.Event{Kind: ledger.EventProcessRetried, AttemptID: "a1", UserID: 9})
	svc.Observe(ctx, ledger.Event{Kind: ledger.EventProcessed, AttemptID: "a1", UserID: 9})
	got, _ = journal.Get(ctx, "a1")
	if got.Status != storage.StatusSucceeded || got.ProcessAttempts != 2 {
		t.Fatalf("unexpected final row: %+v", got)
	}

	if len(pub.events) != 5 {
		t.Fatalf("expected 5 published events, got %d", len(pub.events))
	}
	first := pub.events[0]
	if first.Kind != "upload_started" || first.AttemptID != "a1" || !first.Timestamp.Equal(at) {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if pub.events[2].Stage != "process" {
		t.Fatalf("expected stage on failure event, got %+v", pub.events[2])
	}
}

func TestIngestionService_PublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewIngestionService(nil, pub, applog.Discard())

	svc.Observe(context.Background(), ledger.Event{Kind: ledger.EventCanceled, AttemptID: "x"})
	if len(pub.events) != 1 {
		t.Fatalf("expected publish attempt")
	}
}

func TestIngestionService_IgnoresEventsWithoutAttempt(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewIngestionService(nil, pub, applog.Discard())
	svc.Observe(context.Background(), ledger.Event{Kind: ledger.EventUploaded})
	if len(pub.events) != 0 {
		t.Fatalf("expected no events, got %d", len(pub.events))
	}
}

func TestJournalStatus(t *testing.T) {
	tests := []struct {
		kind ledger.EventKind
		want string
		ok   bool
	}{
		{ledger.EventUploadStarted, storage.StatusUploading, true},
		{ledger.EventUploaded, storage.StatusProcessing, true},
		{ledger.EventProcessRetried, storage.StatusProcessing, true},
		{ledger.EventProcessed, storage.StatusSucceeded, true},
		{ledger.EventFailed, storage.StatusFailed, true},
		{ledger.EventCanceled, storage.StatusCanceled, true},
		{ledger.EventKind("bogus"), "", false},
	}
	for _, tt := range tests {
		got, ok := journalStatus(tt.kind)
		if got != tt.want || ok != tt.ok {
			t.Errorf("journalStatus(%s) = %q, %v; want %q, %v", tt.kind, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIngestionService_Close(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		if err := NewIngestionService(nil, nil, nil).Close(); err != nil {
			t.Fatalf("Close should not return error with nil components: %v", err)
		}
	})

	t.Run("closes publisher", func(t *testing.T) {
		pub := &fakePublisher{}
		_ = NewIngestionService(nil, pub, applog.Discard()).Close()
		if !pub.closed {
			t.Fatal("publisher not closed")
		}
	})
}
