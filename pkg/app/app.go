// Package app assembles the service from its configuration. The HTTP server,
// the serverless entry point and the ops CLI all build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/auth"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
	"github.com/arnavshah/odp-scheduler-go/pkg/handlers"
	"github.com/arnavshah/odp-scheduler-go/pkg/metrics"
	"github.com/arnavshah/odp-scheduler-go/pkg/notify"
)

// App holds every long-lived component.
type App struct {
	Config    config.Config
	Logger    *log.Logger
	DB        *gorm.DB
	Catalog   *database.CachedGateway
	Engine    *scheduler.Engine
	Validator *integrity.Validator
	Runner    *integrity.Runner
	Auth      *auth.Service
	Hub       *notify.Hub
	Metrics   *metrics.Collector
}

// New opens the database and wires the engine, integrity runner and
// notification hub. The runner is created but not started.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Catalog: database.NewCachedGateway(database.NewGateway(db), cfg.CacheSize, cfg.CacheTTL),
		Auth:    auth.NewService(cfg),
		Hub:     notify.NewHub(logger.WithPrefix("ws")),
	}
	if cfg.MetricsEnabled {
		a.Metrics = metrics.NewCollector()
	}

	opts := scheduler.Options{
		Notifier: a.Hub,
		Logger:   logger.WithPrefix("scheduler"),
		Location: cfg.Location(),
	}
	if a.Metrics != nil {
		opts.Recorder = a.Metrics
	}
	a.Engine = scheduler.NewEngine(a.Catalog, scheduler.NewStore(), opts)
	if err := a.Engine.Refresh(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("initial load: %w", err)
	}

	a.Validator = integrity.NewValidator(a.Catalog, a.Hub, logger.WithPrefix("integrity")).WithUnscheduler(a.Engine)
	a.Runner, err = integrity.NewRunner(a.Validator, integrity.RunnerOptions{
		Schedule:       cfg.IntegritySchedule,
		AutoClean:      cfg.IntegrityAutoClean,
		AfterRemediate: a.Engine.Refresh,
		OnReport: func(r integrity.Report) {
			if a.Metrics != nil {
				a.Metrics.ObserveIntegrity(r, time.Now())
			}
		},
		Logger: logger.WithPrefix("integrity"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// EnsureOperator creates the configured operator account on first start.
func (a *App) EnsureOperator(ctx context.Context) error {
	created, err := a.Auth.EnsureOperator(ctx, a.DB, a.Config.AdminUsername, a.Config.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		a.Logger.Info("default operator created", "username", a.Config.AdminUsername)
	}
	return nil
}

// Router builds the HTTP routes.
func (a *App) Router() *gin.Engine {
	return handlers.NewRouter(&handlers.Handler{
		DB:        a.DB,
		Catalog:   a.Catalog,
		Engine:    a.Engine,
		Validator: a.Validator,
		Auth:      a.Auth,
		Hub:       a.Hub,
		Metrics:   a.Metrics,
		Logger:    a.Logger.WithPrefix("http"),
	})
}

// Close releases the database connection.
func (a *App) Close() {
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
