// Package app builds the SmartFi component graph from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/smartfi/internal/aggregate"
	"github.com/ashureev/smartfi/internal/analysis"
	"github.com/ashureev/smartfi/internal/api"
	"github.com/ashureev/smartfi/internal/config"
	"github.com/ashureev/smartfi/internal/fimcp"
	"github.com/ashureev/smartfi/internal/identity"
	"github.com/ashureev/smartfi/internal/middleware"
	"github.com/ashureev/smartfi/internal/mode"
	"github.com/ashureev/smartfi/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// App holds the wired components of one installation.
type App struct {
	Config       *config.Config
	Repo         store.Repository
	Sessions     *identity.SessionStore
	SessionID    string
	Client       *fimcp.Client
	Orchestrator *aggregate.Orchestrator
	Modes        *mode.Controller
	Engine       *analysis.Engine
	Streams      *api.StreamManager
	logger       *slog.Logger
}

// New builds the component graph. A database that cannot be opened is not
// fatal: session state and history then live in memory for this process.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		repo store.Repository
		kv   store.KV
	)
	sqliteRepo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		logger.Warn("Database unavailable, continuing without persistence", "path", cfg.DBPath, "error", err)
		repo = store.NewMemory()
	} else {
		logger.Info("Database connected", "path", cfg.DBPath)
		repo = sqliteRepo
		kv = sqliteRepo
	}

	sessions := identity.NewSessionStore(kv, logger)
	sessionID := sessions.GetOrCreateSessionID(ctx)

	client, err := fimcp.NewClient(fimcp.Config{
		BaseURL:   cfg.FiMCP.BaseURL,
		SessionID: sessionID,
		Timeout:   cfg.FiMCP.Timeout,
		Logger:    logger,
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("create data client: %w", err)
	}

	orch := aggregate.New(client, logger)

	ctrl := mode.NewController(mode.Config{
		SessionID: sessionID,
		Sessions:  sessions,
		Auth:      client,
		Fetcher:   orch,
		DemoOTP:   cfg.FiMCP.DemoOTP,
		Logger:    logger,
	})

	gen, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("create analysis generator: %w", err)
	}
	if gen == nil {
		logger.Info("AI analysis disabled (GEMINI_API_KEY not set), using fallback summaries")
	} else {
		logger.Info("AI analysis enabled", "backend", cfg.AI.Backend, "model", cfg.AI.Model)
	}

	engine := analysis.NewEngine(analysis.Config{
		Generator:    gen,
		Records:      orch,
		History:      repo,
		SessionID:    sessionID,
		Timeout:      cfg.AI.Timeout,
		HistoryLimit: cfg.AI.HistoryLimit,
		Logger:       logger,
	})

	return &App{
		Config:       cfg,
		Repo:         repo,
		Sessions:     sessions,
		SessionID:    sessionID,
		Client:       client,
		Orchestrator: orch,
		Modes:        ctrl,
		Engine:       engine,
		Streams:      api.NewStreamManager(),
		logger:       logger,
	}, nil
}

// newGenerator returns nil when no credential is configured.
func newGenerator(ctx context.Context, cfg config.AIConfig) (analysis.Generator, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Backend {
	case config.AIBackendGenAI:
		return analysis.NewSDKGenerator(ctx, analysis.SDKConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	default:
		return analysis.NewRESTGenerator(cfg.Endpoint, cfg.APIKey, nil), nil
	}
}

// Start restores the persisted mode and starts the refresh worker. It
// blocks while a restored demo mode logs in and fetches.
func (a *App) Start(ctx context.Context) {
	session := a.Modes.Restore(ctx)
	a.logger.Info("Session ready",
		"session_id", a.SessionID,
		"mode", session.Mode,
		"persistence_degraded", a.Sessions.Degraded())

	aggregate.StartRefreshWorker(ctx, a.Orchestrator, a.Config.RefreshInterval, a.Modes.Active)
}

// Router returns the HTTP handler serving the API, the data stream and the
// health check.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(a.Config.AllowedOrigins()))

	api.NewHealthHandler(a.Repo, a.Sessions.Degraded, a.Streams).RegisterHealth(r)
	api.NewHandler(api.Deps{
		Modes:          a.Modes,
		Data:           a.Orchestrator,
		Analyzer:       a.Engine,
		Tools:          a.Client,
		Streams:        a.Streams,
		AllowedOrigins: a.Config.AllowedOrigins(),
	}).RegisterRoutes(r)

	return r
}

// Close closes open streams and the repository.
func (a *App) Close() error {
	a.Streams.CloseAll("server shutting down")
	if err := a.Repo.Close(); err != nil {
		return fmt.Errorf("close repository: %w", err)
	}
	return nil
}
