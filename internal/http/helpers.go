package http

import (
	"bytes"
	"html/template"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	appweb "ledger/web"
)

// pageData feeds the full-page templates.
type pageData struct {
	Title           string
	Error           string
	Success         string
	Email           string
	RedirectToLogin bool
	View            ledger.View
	Upload          uploadView
}

// uploadView is the upload dialog plus a transport level notice that
// never reaches the workflow, e.g. an oversized request.
type uploadView struct {
	ledger.WorkflowState
	Notice string
}

var templateFuncs = template.FuncMap{
	"categories": func() []core.Category { return core.Categories },
}

// parseTemplates loads the embedded page and partial templates.
func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// execute renders the named template into memory so a failure never leaves
// a half written response.
func (s *Server) execute(r *http.Request, name string, data any) ([]byte, bool) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).Error("Template execution failed",
			applog.NewFields().
				WithOperation(applog.OpRender).
				WithError(err).
				ToSlice()...)
		return nil, false
	}
	return buf.Bytes(), true
}

// render writes the named template with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	s.respond(w, r, NewHTMXResponse().Status(status), name, data)
}

// respond renders the named template as the body of b.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, ok := s.execute(r, name, data)
	if !ok {
		InternalServerError("Something went wrong").Write(w)
		return
	}
	b.BodyHTML(body).Write(w)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
