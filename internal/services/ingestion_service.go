package services

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/storage"
)

// ErrUnknownEvent is returned for event kinds the journal has no status for.
var ErrUnknownEvent = errors.New("unknown ingestion event kind")

// AttemptJournal persists ingestion attempts.
type AttemptJournal interface {
	Start(ctx context.Context, a storage.Attempt) error
	Transition(ctx context.Context, id, status, stage, message string) error
	Close() error
}

// EventPublisher broadcasts ingestion events.
type EventPublisher interface {
	PublishIngestionEvent(ctx context.Context, ev *amqp.IngestionEvent) error
	Close() error
}

// IngestionService records workflow transitions in the journal and
// publishes them as events. Either side may be absent. Failures are logged
// and never reach the workflow: the receipt is the backend's concern, the
// journal and the events are bookkeeping.
type IngestionService struct {
	journal   AttemptJournal
	publisher EventPublisher
	logger    *applog.Logger
}

func NewIngestionService(journal AttemptJournal, publisher EventPublisher, logger *applog.Logger) *IngestionService {
	if logger == nil {
		logger = applog.Default(applog.ComponentIngestion)
	}
	return &IngestionService{
		journal:   journal,
		publisher: publisher,
		logger:    logger,
	}
}

// Observe implements ledger.Observer.
func (s *IngestionService) Observe(ctx context.Context, e ledger.Event) {
	if e.AttemptID == "" {
		return
	}
	if err := s.Record(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to journal ingestion event",
			applog.NewFields().
				WithOperation(applog.OpRecord).
				WithAttempt(e.AttemptID, string(e.Stage), e.FileName).
				WithError(err).
				ToSlice()...)
	}
	if err := s.publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ingestion event",
			applog.NewFields().
				WithOperation(applog.OpPublish).
				WithAttempt(e.AttemptID, string(e.Stage), e.FileName).
				WithError(err).
				ToSlice()...)
	}
}

// Record writes e to the journal only.
func (s *IngestionService) Record(ctx context.Context, e ledger.Event) error {
	if s.journal == nil {
		return nil
	}
	if e.Kind == ledger.EventUploadStarted {
		return s.journal.Start(ctx, storage.Attempt{
			ID:        e.AttemptID,
			UserID:    e.UserID,
			FileName:  e.FileName,
			FileSize:  e.FileSize,
			StartedAt: e.At,
		})
	}
	status, ok := journalStatus(e.Kind)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Kind)
	}
	return s.journal.Transition(ctx, e.AttemptID, status, string(e.Stage), e.Message)
}

func (s *IngestionService) publish(ctx context.Context, e ledger.Event) error {
	if s.publisher == nil {
		return nil
	}
	ev := amqp.NewIngestionEvent(e.AttemptID, e.UserID, string(e.Kind))
	ev.Stage = string(e.Stage)
	ev.FileName = e.FileName
	ev.FileSize = e.FileSize
	ev.Message = e.Message
	if !e.At.IsZero() {
		ev.Timestamp = e.At
	}
	return s.publisher.PublishIngestionEvent(ctx, ev)
}

func journalStatus(kind ledger.EventKind) (string, bool) {
	switch kind {
	case ledger.EventUploadStarted:
		return storage.StatusUploading, true
	case ledger.EventUploaded, ledger.EventProcessRetried:
		return storage.StatusProcessing, true
	case ledger.EventProcessed:
		return storage.StatusSucceeded, true
	case ledger.EventFailed:
		return storage.StatusFailed, true
	case ledger.EventCanceled:
		return storage.StatusCanceled, true
	default:
		return "", false
	}
}

// Close closes both journal and publisher.
func (s *IngestionService) Close() error {
	var errs []error

	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ingestion service: %v", errs)
	}

	return nil
}
