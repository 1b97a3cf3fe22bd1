// Package serve boots the session API: it opens the configured store, picks a
// report generator and runs the HTTP server until a shutdown signal arrives.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/echodoc-ai/echodoc/pkg/report"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/lifecycle"
	apiserver "github.com/echodoc-ai/echodoc/pkg/server/server"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
	"github.com/echodoc-ai/echodoc/pkg/sessions/memory"
	"github.com/echodoc-ai/echodoc/pkg/sessions/migrations"
	"github.com/echodoc-ai/echodoc/pkg/sessions/postgres"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	EngineGemini     = "gemini"
	EngineTranscript = "transcript"
)

// Backend is an opened session store.
type Backend struct {
	Store sessions.Store
	Name  string
	Close func()
}

type Deps struct {
	LoadConfig   func() (config.Config, error)
	OpenStore    func(context.Context, config.Config, *slog.Logger) (Backend, error)
	NewGenerator func(context.Context, config.Config, *slog.Logger) (report.Generator, string, error)
	SignalNotify func(chan<- os.Signal, ...os.Signal)
	SignalStop   func(chan<- os.Signal)
}

func DefaultDeps() Deps {
	return Deps{
		LoadConfig:   config.LoadFromEnv,
		OpenStore:    OpenStore,
		NewGenerator: NewGenerator,
		SignalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		SignalStop: signal.Stop,
	}
}

// OpenStore connects to Postgres when a database URL is configured and falls
// back to the in-memory store otherwise.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("no database configured; sessions are kept in memory")
		return Backend{Store: memory.New(), Name: BackendMemory, Close: func() {}}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	defer cancel()
	store, err := postgres.Open(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return Backend{}, err
	}
	if cfg.MigrateOnStart {
		db := store.DB()
		version, err := migrations.Up(ctx, db, logger)
		_ = db.Close()
		if err != nil {
			store.Close()
			return Backend{}, err
		}
		logger.Info("schema up to date", "version", version)
	}
	return Backend{Store: store, Name: BackendPostgres, Close: store.Close}, nil
}

// NewGenerator uses Gemini when an API key is configured. Without one,
// reports are built from the transcript alone.
func NewGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) (report.Generator, string, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return report.TranscriptOnly{}, EngineTranscript, nil
	}
	gen, err := report.NewGemini(ctx, report.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.ReportModel,
		Logger: logger,
	})
	if err != nil {
		return nil, "", err
	}
	return gen, EngineGemini, nil
}

func BuildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

// Run serves until ctx is done or a shutdown signal arrives, then drains.
func Run(ctx context.Context, logger *slog.Logger, deps Deps) error {
	if deps.LoadConfig == nil {
		return errors.New("missing LoadConfig dependency")
	}
	if deps.OpenStore == nil || deps.NewGenerator == nil {
		return errors.New("missing backend dependency")
	}
	if deps.SignalNotify == nil || deps.SignalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	backend, err := deps.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	if backend.Close != nil {
		defer backend.Close()
	}

	gen, engine, err := deps.NewGenerator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("report generator: %w", err)
	}

	lc := &lifecycle.Lifecycle{}
	api := apiserver.New(cfg, apiserver.Deps{
		Store:        backend.Store,
		Generator:    gen,
		Lifecycle:    lc,
		Logger:       logger,
		Backend:      backend.Name,
		ReportEngine: engine,
	})
	httpSrv := BuildHTTPServer(cfg, api.Handler())

	logger.Info("starting session api",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"store", backend.Name,
		"reports", engine,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.SignalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.SignalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context cancelled; shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	lc.SetDraining(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("session api stopped")
	return nil
}
