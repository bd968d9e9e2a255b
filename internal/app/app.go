package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/rag-backend/internal/data/db"
	"github.com/yungbote/rag-backend/internal/data/repos"
	httpx "github.com/yungbote/rag-backend/internal/http"
	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    repos.Repos
	Services Services
	Server   *httpx.Server
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

// New builds the application from the environment. APP_CONFIG_FILE, when set, supplies
// defaults for variables the environment leaves unset.
func New(ctx context.Context) (*App, error) {
	applied, fileErr := LoadFileDefaults(os.Getenv("APP_CONFIG_FILE"))

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if fileErr != nil {
		log.Sync()
		return nil, fileErr
	}
	if applied > 0 {
		log.Info("Applied config file defaults", "file", os.Getenv("APP_CONFIG_FILE"), "count", applied)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}
	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	dbCfg, err := db.ResolveConfigFromEnv()
	if err != nil {
		log.Sync()
		return nil, err
	}
	theDB, err := db.Open(log, dbCfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(theDB, log)
	conv := wireConversation(log, cfg, reposet, clients)

	serviceset, err := wireServices(log, clients, reposet, conv, metrics)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	server, err := wireServer(log, cfg, theDB, clients, serviceset, metrics)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       server,
		Metrics:      metrics,
		otelShutdown: shutdown,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", addr)
	return a.Server.Run(addr)
}

// Close drains in-flight requests, then releases clients and flushes telemetry.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("server shutdown", "error", err)
		}
	}
	a.Clients.Close()
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
