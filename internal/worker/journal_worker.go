// Package worker records ingestion events delivered over AMQP in the local
// attempt journal. It lets the journal live in its own process while the web
// frontend only publishes.
package worker

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// Recorder writes one ingestion event to the journal.
type Recorder interface {
	Record(ctx context.Context, e ledger.Event) error
}

// JournalWorker handles ingestion events consumed from the queue.
type JournalWorker struct {
	recorder Recorder
	logger   *applog.Logger
}

func NewJournalWorker(recorder Recorder, logger *applog.Logger) *JournalWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentJournal)
	}
	return &JournalWorker{recorder: recorder, logger: logger}
}

// HandleIngestionEvent journals ev. Events of unknown kind or without an
// attempt are dropped; a transition that arrives before its attempt was
// started is retried.
func (w *JournalWorker) HandleIngestionEvent(ctx context.Context, ev *amqp.IngestionEvent) (bool, error) {
	if ev.AttemptID == "" {
		w.logger.WarnContext(ctx, "Dropping ingestion event without attempt", "kind", ev.Kind)
		return false, nil
	}

	e := toLedgerEvent(ev)
	err := w.recorder.Record(ctx, e)
	switch {
	case err == nil:
		w.logger.InfoContext(ctx, "Ingestion event journaled",
			applog.NewFields().
				WithOperation(applog.OpRecord).
				WithAttempt(e.AttemptID, string(e.Stage), e.FileName).
				ToSlice()...)
		return false, nil
	case errors.Is(err, services.ErrUnknownEvent):
		return false, err
	case errors.Is(err, storage.ErrAttemptNotFound):
		return true, fmt.Errorf("attempt %s not started yet: %w", e.AttemptID, err)
	case ctx.Err() != nil:
		return true, ctx.Err()
	default:
		return true, err
	}
}

// Run consumes from consumer until ctx is done. Handler errors settle the
// delivery and do not stop the loop.
func (w *JournalWorker) Run(ctx context.Context, consumer Consumer, prefetch int) error {
	w.logger.Info("Journal worker started", "prefetch", prefetch)
	err := consumer.ConsumeIngestionEvents(ctx, prefetch, w.HandleIngestionEvent)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Consumer delivers ingestion events to a handler.
type Consumer interface {
	ConsumeIngestionEvents(ctx context.Context, prefetch int, handler amqp.IngestionHandler) error
}

func toLedgerEvent(ev *amqp.IngestionEvent) ledger.Event {
	return ledger.Event{
		Kind:      ledger.EventKind(ev.Kind),
		AttemptID: ev.AttemptID,
		UserID:    ev.UserID,
		FileName:  ev.FileName,
		FileSize:  ev.FileSize,
		Stage:     ledger.Stage(ev.Stage),
		Message:   ev.Message,
		At:        ev.Timestamp,
	}
}
