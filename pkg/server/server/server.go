package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/report"
	"github.com/echodoc-ai/echodoc/pkg/server/auth"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/handlers"
	"github.com/echodoc-ai/echodoc/pkg/server/lifecycle"
	"github.com/echodoc-ai/echodoc/pkg/server/mw"
	"github.com/echodoc-ai/echodoc/pkg/server/ratelimit"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Store     sessions.Store
	Generator report.Generator
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger

	// Backend and ReportEngine are reported by /readyz.
	Backend      string
	ReportEngine string
}

type Server struct {
	cfg      config.Config
	deps     Deps
	logger   *slog.Logger
	mux      *http.ServeMux
	verifier *auth.Verifier
	limiter  *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.Generator == nil {
		deps.Generator = report.TranscriptOnly{}
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		mux:      http.NewServeMux(),
		verifier: auth.NewVerifier(cfg.SigningKey, cfg.Issuer),
		limiter: ratelimit.New(ratelimit.Config{
			Requests:    ratelimit.Budget{Rate: cfg.LimitRPS, Burst: cfg.LimitBurst},
			Reports:     ratelimit.PerMinute(cfg.ReportLimitPerMinute, cfg.ReportLimitBurst),
			MaxInFlight: cfg.LimitMaxConcurrentRequests,
		}),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:       s.cfg,
		Lifecycle:    s.deps.Lifecycle,
		Store:        s.deps.Store,
		Backend:      s.deps.Backend,
		ReportEngine: s.deps.ReportEngine,
	})

	s.mux.Handle("/api/doctors", handlers.DoctorsHandler{})
	s.mux.Handle("/api/session-chat", handlers.SessionChatHandler{
		Config: s.cfg,
		Store:  s.deps.Store,
		Logger: s.logger,
	})
	s.mux.Handle("/api/medical-report", handlers.MedicalReportHandler{
		Config:    s.cfg,
		Store:     s.deps.Store,
		Generator: s.deps.Generator,
		Logger:    s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = withDeadline(s.cfg.HandlerTimeout, h)
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, s.verifier, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// withDeadline bounds each request's context.
func withDeadline(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
