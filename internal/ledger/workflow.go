package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger/internal/backend"
	applog "ledger/internal/log"
	"ledger/internal/preview"
)

// User visible workflow messages.
const (
	MsgUploading    = "Uploading..."
	MsgProcessing   = "Processing receipt..."
	MsgAdded        = "Expense added!"
	MsgUploadFailed = "Upload failed"
)

// DefaultDismissDelay is how long "Expense added!" stays on screen.
const DefaultDismissDelay = 1200 * time.Millisecond

var (
	ErrNoFile         = errors.New("no receipt selected")
	ErrBusy           = errors.New("upload in progress")
	ErrNotOpen        = errors.New("upload dialog is not open")
	ErrNothingToRetry = errors.New("no failed processing step to retry")
)

// Uploader is the write side of the backend.
type Uploader interface {
	UploadReceipt(ctx context.Context, r backend.Receipt) error
	ProcessReceipt(ctx context.Context, userID int64) error
}

// PreviewStore holds local preview images for selected files.
type PreviewStore interface {
	Put(img preview.Image) (string, error)
	Release(handle string)
}

// Timer is a pending auto-dismiss.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// StdAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc schedules with the runtime timer.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Status is the active variant of the workflow.
type Status int

const (
	StatusIdle Status = iota
	StatusSelecting
	StatusUploading
	StatusProcessing
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSelecting:
		return "selecting"
	case StatusUploading:
		return "uploading"
	case StatusProcessing:
		return "processing"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage names the step a Failed state came from.
type Stage string

const (
	StageUpload  Stage = "upload"
	StageProcess Stage = "process"
)

// WorkflowState is a snapshot of the ingestion workflow.
type WorkflowState struct {
	Status        Status
	FileName      string
	FileSize      int
	PreviewHandle string
	Message       string
	Stage         Stage
	AttemptID     string
}

// DialogOpen reports whether the upload dialog is shown.
func (s WorkflowState) DialogOpen() bool { return s.Status != StatusIdle }

// HasFile reports whether a file is selected.
func (s WorkflowState) HasFile() bool { return s.FileName != "" }

// Busy reports whether a request of the current attempt is in flight.
func (s WorkflowState) Busy() bool {
	return s.Status == StatusUploading || s.Status == StatusProcessing
}

// Uploading reports whether the file is being sent. "Add Expense" is
// disabled meanwhile.
func (s WorkflowState) Uploading() bool { return s.Status == StatusUploading }

// Settling reports whether the state will still move without user input.
func (s WorkflowState) Settling() bool {
	return s.Busy() || s.Status == StatusSucceeded
}

// CanSubmit reports whether the Upload button is enabled.
func (s WorkflowState) CanSubmit() bool {
	return (s.Status == StatusSelecting || s.Status == StatusFailed) && s.HasFile()
}

// CanRetryProcessing reports whether processing can be re-triggered
// without uploading again.
func (s WorkflowState) CanRetryProcessing() bool {
	return s.Status == StatusFailed && s.Stage == StageProcess
}

// ButtonLabel is the text of the Upload button.
func (s WorkflowState) ButtonLabel() string {
	switch s.Status {
	case StatusUploading:
		return "Uploading..."
	case StatusProcessing, StatusSucceeded:
		return "Uploaded!"
	default:
		return "Upload"
	}
}

// WorkflowConfig wires a Workflow.
type WorkflowConfig struct {
	UserID       int64
	Uploader     Uploader
	Previews     PreviewStore
	Observer     Observer
	DismissDelay time.Duration
	AfterFunc    AfterFunc
	// Refresh runs after processing succeeded and before the dismiss timer
	// is armed.
	Refresh func(ctx context.Context)
	Logger  *applog.Logger
}

// Workflow drives one receipt through upload, processing and refresh.
//
// Each transition that starts or abandons an attempt bumps a generation
// counter. Network resolutions carry the generation they were issued under
// and are ignored once it moved on, which is how cancel and close take
// effect without aborting requests.
type Workflow struct {
	cfg    WorkflowConfig
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  WorkflowState
	file   *backend.Receipt
	gen    uint64
	timer  Timer
	closed bool
}

// NewWorkflow creates an idle workflow.
func NewWorkflow(cfg WorkflowConfig) *Workflow {
	if cfg.DismissDelay <= 0 {
		cfg.DismissDelay = DefaultDismissDelay
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = StdAfterFunc
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.Default(applog.ComponentIngestion)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Workflow{cfg: cfg, ctx: ctx, cancel: cancel}
}

// State returns a snapshot of the workflow.
func (w *Workflow) State() WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Open shows the dialog with no file chosen.
func (w *Workflow) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.state.Status != StatusIdle {
		return ErrBusy
	}
	w.gen++
	w.file = nil
	w.state = WorkflowState{Status: StatusSelecting}
	return nil
}

// SelectFile replaces the chosen file. A receipt with no name and no data
// clears the selection.
func (w *Workflow) SelectFile(r backend.Receipt) error {
	w.mu.Lock()
	switch w.state.Status {
	case StatusSelecting, StatusFailed:
	case StatusIdle:
		w.mu.Unlock()
		return ErrNotOpen
	default:
		w.mu.Unlock()
		return ErrBusy
	}

	old := w.state.PreviewHandle
	w.state = WorkflowState{Status: StatusSelecting}
	w.file = nil
	if r.Name != "" || len(r.Data) > 0 {
		f := r
		w.file = &f
		w.state.FileName = r.Name
		if w.state.FileName == "" {
			w.state.FileName = "receipt"
		}
		w.state.FileSize = len(r.Data)
		if w.cfg.Previews != nil {
			handle, err := w.cfg.Previews.Put(preview.Image{ContentType: r.ContentType, Data: r.Data})
			if err != nil {
				w.cfg.Logger.Debug("No preview for selected file", applog.FieldFileName, r.Name, applog.FieldError, err)
			} else {
				w.state.PreviewHandle = handle
			}
		}
	}
	w.mu.Unlock()

	w.release(old)
	return nil
}

// Submit starts uploading the selected file. It is accepted from Selecting
// and, to retry, from Failed.
func (w *Workflow) Submit() error {
	w.mu.Lock()
	switch w.state.Status {
	case StatusSelecting, StatusFailed:
	case StatusIdle:
		w.mu.Unlock()
		return ErrNotOpen
	default:
		w.mu.Unlock()
		return ErrBusy
	}
	if w.file == nil {
		w.mu.Unlock()
		return ErrNoFile
	}

	w.gen++
	gen := w.gen
	file := *w.file
	w.state.Status = StatusUploading
	w.state.Message = MsgUploading
	w.state.Stage = ""
	w.state.AttemptID = uuid.NewString()
	ev := w.eventLocked(EventUploadStarted)
	w.wg.Add(1)
	w.mu.Unlock()

	w.observe(ev)
	go w.run(gen, &file)
	return nil
}

// RetryProcessing re-triggers processing of the receipt already uploaded
// by an attempt that failed in the processing stage.
func (w *Workflow) RetryProcessing() error {
	w.mu.Lock()
	if !w.state.CanRetryProcessing() {
		w.mu.Unlock()
		return ErrNothingToRetry
	}
	w.gen++
	gen := w.gen
	w.state.Status = StatusProcessing
	w.state.Message = MsgProcessing
	w.state.Stage = ""
	ev := w.eventLocked(EventProcessRetried)
	w.wg.Add(1)
	w.mu.Unlock()

	w.observe(ev)
	go w.run(gen, nil)
	return nil
}

// Cancel closes the dialog from any open state. Requests already in flight
// run to completion and their outcome is ignored.
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	if w.state.Status == StatusIdle {
		w.mu.Unlock()
		return ErrNotOpen
	}
	var ev Event
	inFlight := w.state.Busy()
	if inFlight {
		ev = w.eventLocked(EventCanceled)
	}
	handle := w.resetLocked()
	w.mu.Unlock()

	w.release(handle)
	if inFlight {
		w.observe(ev)
	}
	return nil
}

// Close abandons the workflow. Later resolutions are ignored and no further
// command is accepted.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	handle := w.resetLocked()
	w.mu.Unlock()

	w.cancel()
	w.release(handle)
}

// Wait blocks until every started attempt goroutine returned.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// run performs the attempt of generation gen. A nil file skips the upload.
func (w *Workflow) run(gen uint64, file *backend.Receipt) {
	defer w.wg.Done()
	ctx := w.ctx
	logger := w.cfg.Logger

	if file != nil {
		if err := w.cfg.Uploader.UploadReceipt(ctx, *file); err != nil {
			logger.Warn("Receipt upload failed", applog.FieldUserID, w.cfg.UserID, applog.FieldFileName, file.Name, applog.FieldError, err)
			w.fail(gen, StageUpload, err)
			return
		}
		ev, ok := w.advance(gen, StatusProcessing, MsgProcessing, EventUploaded)
		if !ok {
			logger.Debug("Upload resolved for abandoned attempt", applog.FieldAttempt, gen)
			return
		}
		w.observe(ev)
	}

	if err := w.cfg.Uploader.ProcessReceipt(ctx, w.cfg.UserID); err != nil {
		logger.Warn("Receipt processing failed", applog.FieldUserID, w.cfg.UserID, applog.FieldError, err)
		w.fail(gen, StageProcess, err)
		return
	}
	ev, ok := w.advance(gen, StatusSucceeded, MsgAdded, EventProcessed)
	if !ok {
		logger.Debug("Processing resolved for abandoned attempt", applog.FieldAttempt, gen)
		return
	}
	w.observe(ev)
	logger.Info("Expense added from receipt", applog.FieldUserID, w.cfg.UserID, applog.FieldAttemptID, ev.AttemptID)

	if w.cfg.Refresh != nil {
		w.cfg.Refresh(ctx)
	}
	w.armDismiss(gen)
}

func (w *Workflow) advance(gen uint64, to Status, msg string, kind EventKind) (Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stale(gen) {
		return Event{}, false
	}
	w.state.Status = to
	w.state.Message = msg
	return w.eventLocked(kind), true
}

// fail moves to Failed keeping the file, so the user can retry. Both stages
// fall back to the same generic message.
func (w *Workflow) fail(gen uint64, stage Stage, err error) {
	w.mu.Lock()
	if w.stale(gen) {
		w.mu.Unlock()
		return
	}
	w.state.Status = StatusFailed
	w.state.Stage = stage
	w.state.Message = backend.DetailOr(err, MsgUploadFailed)
	ev := w.eventLocked(EventFailed)
	ev.Err = err
	w.mu.Unlock()

	w.observe(ev)
}

func (w *Workflow) armDismiss(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stale(gen) {
		return
	}
	w.timer = w.cfg.AfterFunc(w.cfg.DismissDelay, func() { w.dismiss(gen) })
}

func (w *Workflow) dismiss(gen uint64) {
	w.mu.Lock()
	if w.stale(gen) || w.state.Status != StatusSucceeded {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	handle := w.resetLocked()
	w.mu.Unlock()

	w.release(handle)
}

// resetLocked returns to Idle, invalidates the current attempt and returns
// the preview handle to release.
func (w *Workflow) resetLocked() string {
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	handle := w.state.PreviewHandle
	w.state = WorkflowState{Status: StatusIdle}
	w.file = nil
	return handle
}

func (w *Workflow) stale(gen uint64) bool {
	return w.closed || gen != w.gen
}

func (w *Workflow) release(handle string) {
	if handle != "" && w.cfg.Previews != nil {
		w.cfg.Previews.Release(handle)
	}
}
