package http

import (
	"errors"
	"net/http"

	"ledger/internal/backend"
	applog "ledger/internal/log"
	"ledger/internal/session"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgLoginFailed        = "Login failed"
	msgRegisterFailed     = "Registration failed"
	msgRegistered         = "Registration successful! Redirecting to login..."
	msgBadForm            = "Invalid request format"
)

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.sessions.Lookup(session.IDFromRequest(r)); ok {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", pageData{Title: "Login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", pageData{Title: "Login", Error: msgBadForm})
		return
	}
	creds := ParseCredentials(r.PostForm)

	res, err := s.auth.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		msg := backend.DetailOr(err, msgLoginFailed)
		if errors.Is(err, backend.ErrUnexpectedResponse) {
			msg = msgInvalidCredentials
		}
		logger.Info("Login rejected", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		s.render(w, r, http.StatusUnauthorized, "login.html", pageData{Title: "Login", Error: msg, Email: creds.Email})
		return
	}

	// A fresh login always starts a fresh session.
	if old := session.IDFromRequest(r); old != "" {
		s.sessions.Logout(old)
	}
	id, err := s.sessions.Login(res.UserID)
	if err != nil {
		logger.Error("Failed to create session", applog.FieldUserID, res.UserID, applog.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "login.html", pageData{Title: "Login", Error: msgLoginFailed, Email: creds.Email})
		return
	}
	session.SetCookie(w, id, s.cfg.CookieSecure, s.cfg.SessionTTL)
	logger.Info("User logged in", applog.FieldOperation, applog.OpLogin, applog.FieldUserID, res.UserID)
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", pageData{Title: "Register"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "register.html", pageData{Title: "Register", Error: msgBadForm})
		return
	}
	creds := ParseCredentials(r.PostForm)

	if err := s.auth.Register(r.Context(), creds.Email, creds.Password); err != nil {
		msg := backend.DetailOr(err, msgRegisterFailed)
		applog.FromContext(r.Context()).Info("Registration rejected",
			applog.FieldOperation, applog.OpRegister, applog.FieldError, err)
		s.render(w, r, http.StatusBadRequest, "register.html", pageData{Title: "Register", Error: msg, Email: creds.Email})
		return
	}
	s.render(w, r, http.StatusOK, "register.html", pageData{Title: "Register", Success: msgRegistered, RedirectToLogin: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := session.IDFromRequest(r); id != "" {
		s.sessions.Logout(id)
		applog.FromContext(r.Context()).Info("User logged out", applog.FieldOperation, applog.OpLogout)
	}
	session.ClearCookie(w, s.cfg.CookieSecure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
