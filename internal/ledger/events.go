package ledger

import (
	"context"
	"time"
)

// EventKind names an ingestion transition reported to an Observer.
type EventKind string

const (
	EventUploadStarted  EventKind = "upload_started"
	EventUploaded       EventKind = "uploaded"
	EventProcessRetried EventKind = "process_retried"
	EventProcessed      EventKind = "processed"
	EventFailed         EventKind = "failed"
	EventCanceled       EventKind = "canceled"
)

// Event describes one transition of an ingestion attempt.
type Event struct {
	Kind      EventKind
	AttemptID string
	UserID    int64
	FileName  string
	FileSize  int
	Stage     Stage
	Message   string
	Err       error
	At        time.Time
}

// Terminal reports whether the event ends its attempt.
func (e Event) Terminal() bool {
	return e.Kind == EventProcessed || e.Kind == EventFailed || e.Kind == EventCanceled
}

// Observer receives ingestion events. Observe is called outside the
// workflow lock, from the goroutine that caused the transition, and must not
// call back into the workflow.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

func (w *Workflow) eventLocked(kind EventKind) Event {
	return Event{
		Kind:      kind,
		AttemptID: w.state.AttemptID,
		UserID:    w.cfg.UserID,
		FileName:  w.state.FileName,
		FileSize:  w.state.FileSize,
		Stage:     w.state.Stage,
		Message:   w.state.Message,
		At:        time.Now(),
	}
}

func (w *Workflow) observe(e Event) {
	if w.cfg.Observer != nil {
		w.cfg.Observer.Observe(context.WithoutCancel(w.ctx), e)
	}
}
