// Package http serves the bills API, the Google sign-in flow and the
// server-rendered dashboard.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"billscan/internal/auth"
	"billscan/internal/core"
	"billscan/internal/log"
	"billscan/internal/metrics"
	"billscan/internal/middleware/ratelimit"
	"billscan/internal/middleware/security"
	"billscan/internal/middleware/trace"
	"billscan/internal/services"
	appweb "billscan/web"
)

// UserStore is the account persistence used by sign-in and /api/user/me.
type UserStore interface {
	UpsertUser(ctx context.Context, email, name, refreshToken string) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	Ping(ctx context.Context) error
}

// BillReader serves filtered bill lists and summaries.
type BillReader interface {
	List(ctx context.Context, userID int64, q services.Query) ([]core.Bill, error)
	Summary(ctx context.Context, userID int64, c core.Criteria) (core.Summary, error)
}

// SyncRequester starts mailbox syncs and reports their progress.
type SyncRequester interface {
	Request(ctx context.Context, userID int64) (core.SyncJob, bool, error)
	Status(ctx context.Context, userID int64, jobID string) (core.SyncJob, error)
}

// OAuthProvider runs the authorization code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, tok *oauth2.Token) (auth.GoogleUser, error)
}

// Config holds the server settings that are not collaborators.
type Config struct {
	Addr            string
	FrontendURL     string
	RateLimitPerMin int
	Logger          *log.Logger
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Users   UserStore
	Bills   BillReader
	Sync    SyncRequester
	OAuth   OAuthProvider
	JWT     *auth.JWTManager
	Metrics *metrics.Metrics
}

type Server struct {
	http.Server
	templates *template.Template

	users   UserStore
	bills   BillReader
	sync    SyncRequester
	oauth   OAuthProvider
	jwt     *auth.JWTManager
	metrics *metrics.Metrics

	frontendURL string
	limiter     *ratelimit.Limiter
	detector    *security.Detector
	startedAt   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(cfg Config, deps Deps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP})
	}

	s := &Server{
		users:       deps.Users,
		bills:       deps.Bills,
		sync:        deps.Sync,
		oauth:       deps.OAuth,
		jwt:         deps.JWT,
		metrics:     deps.Metrics,
		frontendURL: cfg.FrontendURL,
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMin}),
		detector:    security.NewDetector(),
		startedAt:   time.Now(),
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("POST /sync", s.handleDashboardSync)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /auth/google", s.handleGoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", s.handleGoogleCallback)
	mux.HandleFunc("GET /auth/logout", s.handleLogout)

	requireAuth := auth.RequireAuth(s.jwt)
	mux.Handle("GET /api/user/me", requireAuth(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /api/bills", requireAuth(http.HandlerFunc(s.handleListBills)))
	mux.Handle("GET /api/bills/summary", requireAuth(http.HandlerFunc(s.handleSummary)))
	mux.Handle("POST /api/sync", requireAuth(http.HandlerFunc(s.handleRequestSync)))
	mux.Handle("GET /api/sync/{id}", requireAuth(http.HandlerFunc(s.handleSyncStatus)))

	var h http.Handler = trace.CaptureRoute(mux)
	h = s.limiter.Middleware(s.detector.ExtractClientIP)(h)
	h = security.CORS(cfg.FrontendURL)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(logger, trace.GetRequestID)(h)
	h = trace.NewMiddleware(s.detector.ExtractClientIP, s.metrics).Middleware(h)
	h = s.detector.Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
