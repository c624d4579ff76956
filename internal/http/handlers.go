package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ledger/internal/session"
)

// handleIndex sends the browser to the ledger or to the login form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.sessions.Lookup(session.IDFromRequest(r)); ok {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NotFoundError("Not found").Write(w)
		return
	}
	s.render(w, r, http.StatusNotFound, "notfound.html", pageData{Title: "Not found"})
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs every registered dependency check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(s.ready)+3)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["sessions"] = map[string]any{"active": s.sessions.Len()}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"rejected":       s.limiter.Rejected(),
	}
	traced := s.tracer.GetMetrics()
	checks["requests"] = map[string]any{
		"total":         traced.TotalRequests,
		"server_errors": traced.ServerErrors,
		"suspicious":    s.detector.SuspiciousRequests(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
