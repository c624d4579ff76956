package http

import (
	"net/http"

	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

// handleHome renders the ledger page and fetches the current filter.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	ctrl.Mount()
	view := ctrl.Snapshot()
	s.render(w, r, http.StatusOK, "home.html", pageData{
		Title:  "Your Expenses",
		View:   view,
		Upload: uploadView{WorkflowState: view.Workflow},
	})
}

// handleLedger re-renders the ledger partial without fetching.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	s.renderLedger(w, r, ctrl)
}

func (s *Server) handleSelectCategory(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	logger := applog.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError(msgBadForm).Write(w)
		return
	}
	category, err := ParseCategoryParam(r.PostForm)
	if err == nil {
		err = ctrl.SelectCategory(category)
	}
	if err != nil {
		logger.Debug("Ignoring category selection", applog.FieldCategory, r.PostForm.Get("category"), applog.FieldError, err)
	}
	s.renderLedger(w, r, ctrl)
}

func (s *Server) handleSetPage(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	logger := applog.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError(msgBadForm).Write(w)
		return
	}
	cmd, err := ParsePageCommand(r.PostForm)
	if err == nil {
		switch cmd.Dir {
		case DirNext:
			err = ctrl.NextPage()
		case DirPrev:
			err = ctrl.PrevPage()
		default:
			err = ctrl.SetPage(cmd.Page)
		}
	}
	if err != nil {
		logger.Debug("Ignoring page change", applog.FieldPage, cmd.Page, applog.FieldError, err)
	}
	s.renderLedger(w, r, ctrl)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	ctrl.Refresh()
	s.renderLedger(w, r, ctrl)
}

func (s *Server) renderLedger(w http.ResponseWriter, r *http.Request, ctrl *ledger.Controller) {
	s.render(w, r, http.StatusOK, "ledger", ctrl.Snapshot())
}
