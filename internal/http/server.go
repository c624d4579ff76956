package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ledger/internal/backend"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/preview"
	"ledger/internal/session"
	appweb "ledger/web"
)

// Authenticator is the account side of the backend.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (backend.LoginResult, error)
	Register(ctx context.Context, email, password string) error
}

// PreviewSource serves stored receipt previews.
type PreviewSource interface {
	Get(handle string) (preview.Image, bool)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Sessions binds one ledger controller to every logged-in browser.
type Sessions = session.Store[*ledger.Controller]

// Config holds the server settings taken from the environment.
type Config struct {
	Addr               string
	CookieSecure       bool
	SessionTTL         time.Duration
	MaxUploadBytes     int64
	RateLimitPerMinute int
	TrustedProxies     []string
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Auth     Authenticator
	Sessions *Sessions
	Previews PreviewSource
	Ready    map[string]ReadinessCheck
	Logger   *applog.Logger
}

// Server serves the ledger pages and their HTMX partials.
type Server struct {
	http.Server
	cfg       Config
	templates *template.Template
	auth      Authenticator
	sessions  *Sessions
	previews  PreviewSource
	ready     map[string]ReadinessCheck
	logger    *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("new server: auth and sessions are required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}

	t, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
	}
	s := &Server{
		cfg:       cfg,
		templates: t,
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		previews:  deps.Previews,
		ready:     deps.Ready,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:  detector,
		tracer:    trace.NewMiddleware(logger, detector.ExtractClientIP, trace.WithSuspicionCheck(detector.DetectSuspiciousRequest)),
		started:   time.Now(),
	}

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		s.limiter.Stop()
		return nil, err
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.tracer.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)
	private := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", limit(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("GET /register", s.handleRegisterPage)
	mux.Handle("POST /register", limit(http.HandlerFunc(s.handleRegister)))
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /home", private(s.withController(s.handleHome)))

	mux.Handle("GET /ui/ledger", private(s.withController(s.handleLedger)))
	mux.Handle("POST /ui/ledger/category", private(s.withController(s.handleSelectCategory)))
	mux.Handle("POST /ui/ledger/page", private(s.withController(s.handleSetPage)))
	mux.Handle("POST /ui/ledger/refresh", private(s.withController(s.handleRefresh)))

	mux.Handle("POST /ui/receipt/open", private(s.withController(s.handleOpenUpload)))
	mux.Handle("POST /ui/receipt/select", limit(private(s.withController(s.handleSelectFile))))
	mux.Handle("POST /ui/receipt/submit", limit(private(s.withController(s.handleSubmitUpload))))
	mux.Handle("POST /ui/receipt/retry", limit(private(s.withController(s.handleRetryProcessing))))
	mux.Handle("POST /ui/receipt/cancel", private(s.withController(s.handleCancelUpload)))
	mux.Handle("GET /ui/receipt/status", private(s.withController(s.handleUploadStatus)))
	mux.Handle("GET /ui/receipt/preview/{handle}", s.withController(s.handlePreview))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("/", s.handleNotFound)
	return nil
}

// withController resolves the session's controller. Requests without a
// logged-in session are sent to /login before any controller exists.
func (s *Server) withController(next func(http.ResponseWriter, *http.Request, *ledger.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := session.IDFromRequest(r)
		_, ctrl, ok := s.sessions.Lookup(id)
		if !ok {
			if id != "" {
				session.ClearCookie(w, s.cfg.CookieSecure)
			}
			s.redirectToLogin(w, r)
			return
		}
		next(w, r, ctrl)
	}
}

func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).Warn("Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r))
	TooManyRequestsError("Too many requests. Please try again later.").Write(w)
}

// Shutdown stops accepting requests, then closes every session so no
// background fetch or ingestion outlives the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.sessions.CloseAll()
	})
	return shutdownErr
}
