package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/analyses"
	"proposal-prepper/internal/mockengine"
	"proposal-prepper/internal/results"
	"proposal-prepper/internal/shared/config"
	"proposal-prepper/internal/shared/server"
	"proposal-prepper/internal/shared/storage/db"
	"proposal-prepper/internal/shared/telemetry"
	"proposal-prepper/internal/transport"
)

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Engine          *mockengine.Engine
	Client          *transport.Client
	Socket          *transport.Socket
	Store           analyses.Store
	Cache           results.Cache
	Fetcher         *results.Fetcher
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
}

// Build wires every dependency. In mock mode the engine runs in-process and
// the client points at it.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	telemetry.SetLevel(cfg.LogLevel)

	app := &App{Config: cfg}
	if cfg.Mode == config.ModeMock {
		engine := mockengine.New(mockengine.Options{StepInterval: cfg.Analysis.MockStepInterval})
		baseURL, err := engine.Start("127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("start mock engine: %w", err)
		}
		app.Engine = engine
		app.Config.Engine.BaseURL = baseURL
	}

	sqlDB, err := buildDB(ctx, app.Config)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.DB = sqlDB

	app.Client = transport.New(TransportOptions(ctx, app.Config))
	app.Socket = transport.NewSocket(SocketOptions(app.Config))
	app.Store = analyses.NewMemoryStore()
	if app.DB != nil {
		app.Cache = &results.PGCache{DB: app.DB}
	} else {
		app.Cache = results.NewMemoryCache()
	}
	app.Fetcher = results.NewFetcher(results.EngineSource{Client: app.Client}, app.Cache)
	app.AnalysesService = analyses.NewService(app.Client, app.Socket, app.Store, app.Fetcher, ServiceOptions(app.Config))
	app.AnalysisHandler = analyses.NewHandler(app.AnalysesService)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		AnalysisHandler: app.AnalysisHandler,
	})

	app.AnalysesService.SubscribeToRealTimeUpdates(ctx)
	telemetry.Info("bootstrap.ready", map[string]any{
		"mode":            app.Config.Mode,
		"engine_base_url": app.Config.Engine.BaseURL,
		"results_cache":   cacheKind(app.DB),
	})
	return app, nil
}

// Close releases everything Build acquired.
func (a *App) Close() {
	if a.AnalysesService != nil {
		a.AnalysesService.Close()
	}
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// TransportOptions derives HTTP client options. Engine credentials switch on
// client-credentials auth.
func TransportOptions(ctx context.Context, cfg config.Config) transport.Options {
	e := cfg.Engine
	return transport.Options{
		BaseURL:        e.BaseURL,
		Timeout:        e.RequestTimeout,
		MaxAttempts:    e.MaxAttempts,
		InitialBackoff: e.RetryBaseDelay,
		MaxBackoff:     e.RetryMaxDelay,
		HealthCacheTTL: e.HealthCacheTTL,
		HTTPClient:     transport.NewOAuthHTTPClient(ctx, e.ClientID, e.ClientSecret, e.TokenURL),
	}
}

// SocketOptions derives push socket options.
func SocketOptions(cfg config.Config) transport.SocketOptions {
	return transport.SocketOptions{
		URL:                  transport.SocketURL(cfg.Engine.BaseURL),
		MaxReconnectAttempts: cfg.Engine.MaxReconnectAttempts,
		ReconnectInterval:    cfg.Engine.ReconnectInterval,
	}
}

// ServiceOptions derives orchestrator options.
func ServiceOptions(cfg config.Config) analyses.Options {
	return analyses.Options{
		PollInterval:      cfg.Analysis.PollInterval,
		Timeout:           cfg.Analysis.Timeout,
		PollRatePerSecond: cfg.Analysis.PollRatePerSecond,
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		telemetry.Info("bootstrap.db_disabled", map[string]any{"reason": "DATABASE_URL empty; using in-memory results cache"})
		return nil, nil
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db_unavailable", map[string]any{"error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.migrations_failed", map[string]any{"error": err.Error()})
			return nil, nil
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func cacheKind(sqlDB *sql.DB) string {
	if sqlDB != nil {
		return "postgres"
	}
	return "memory"
}
