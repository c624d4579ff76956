package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

const msgFileTooLarge = "File too large"

func (s *Server) handleOpenUpload(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	s.applyUpload(w, r, ctrl, "open", ctrl.OpenUpload)
}

func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	logger := applog.FromContext(r.Context())
	receipt, err := ParseReceiptUpload(w, r, s.cfg.MaxUploadBytes)
	if err != nil {
		notice := msgBadForm
		if errors.Is(err, ErrUploadTooLarge) {
			notice = msgFileTooLarge
		}
		logger.Info("Rejected receipt form", applog.FieldError, err)
		s.renderUpload(w, r, ctrl, notice)
		return
	}
	s.applyUpload(w, r, ctrl, "select", func() error { return ctrl.SelectFile(receipt) })
}

func (s *Server) handleSubmitUpload(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	s.applyUpload(w, r, ctrl, "submit", ctrl.SubmitUpload)
}

func (s *Server) handleRetryProcessing(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	s.applyUpload(w, r, ctrl, "retry", ctrl.RetryProcessing)
}

func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	s.applyUpload(w, r, ctrl, "cancel", ctrl.CancelUpload)
}

// handleUploadStatus is polled while the dialog settles. Once the expense
// was added the ledger is told to re-render, showing the refresh.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	view := ctrl.Snapshot()
	b := NewHTMXResponse()
	if view.Workflow.Status == ledger.StatusSucceeded {
		b.TriggerLedgerChanged(view.Page, view.Filter.CategoryLabel())
	}
	s.respond(w, r, b, "upload", uploadView{WorkflowState: view.Workflow})
}

// handlePreview serves the preview of the file selected in this session's
// dialog. Handles of other sessions are not found.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	handle := r.PathValue("handle")
	if s.previews == nil || handle == "" || handle != ctrl.Snapshot().Workflow.PreviewHandle {
		http.NotFound(w, r)
		return
	}
	img, ok := s.previews.Get(handle)
	if !ok {
		http.NotFound(w, r)
		return
	}
	ct := img.ContentType
	if ct == "" {
		ct = http.DetectContentType(img.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(img.Data)
}

// applyUpload runs a dialog command and re-renders the dialog. Rejected
// commands leave the state as is and are not surfaced.
func (s *Server) applyUpload(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller, name string, cmd func() error) {
	if err := cmd(); err != nil {
		applog.FromContext(r.Context()).Debug(fmt.Sprintf("Ignoring upload %s", name), applog.FieldError, err)
	}
	s.renderUpload(w, r, ctrl, "")
}

func (s *Server) renderUpload(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller, notice string) {
	s.render(w, r, http.StatusOK, "upload", uploadView{WorkflowState: ctrl.Snapshot().Workflow, Notice: notice})
}
