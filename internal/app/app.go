package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/data/db"
	"github.com/upliftcs/upliftcs-backend/internal/http"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/events"
	"github.com/upliftcs/upliftcs-backend/internal/observability"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/envutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
	"github.com/upliftcs/upliftcs-backend/internal/temporalx/temporalworker"
)

const serviceName = "upliftcs-api"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	dbService     *db.Service
	server        *http.Server
	otelShutdown  func(context.Context) error
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log)

	dbService, err := db.NewService(cfg.DBServiceConfig(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(dbService.DB()); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()
	metrics.RegisterDB(log, theDB)

	clientSet, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	repoSet := wireRepos(theDB, log)
	serviceSet := wireServices(theDB, log, cfg, repoSet, clientSet, metrics)
	handlerSet := wireHandlers(log, serviceSet)
	router := wireRouter(log, cfg, handlerSet, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        repoSet,
		Clients:      clientSet,
		Services:     serviceSet,
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Start seeds defaults and launches the background schedulers.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Cfg.SeedDefaultPlaybooks {
		report, err := a.Services.Playbooks.InitializeDefaults(ctx)
		if err != nil {
			return fmt.Errorf("seed default playbooks: %w", err)
		}
		a.Log.Info("Default playbooks ready", "created", report.Created, "skipped", report.Skipped)
	}

	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis, 30*time.Second)
	}
	if a.Cfg.MetricsAddr != "" {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}
	if a.Clients.EventBus != nil && a.Clients.Kafka == nil {
		evLog := a.Log.With("component", "EventForwarder")
		err := a.Clients.EventBus.StartForwarder(ctx, func(ev events.Event) {
			evLog.Debug("Execution event", "type", ev.Type, "execution_id", ev.ExecutionID)
		})
		if err != nil {
			a.Log.Warn("Event forwarder not started", "error", err)
		}
	}

	// Temporal owns the sweep loop when configured; otherwise the in-process ticker does.
	if a.Clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, a.Services.Engine)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	} else {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Services.Sweeper.Run(ctx, a.Cfg.SweepInterval.Std())
		}()
	}
	return nil
}

// Run blocks serving HTTP until ctx is done, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.server = http.NewServer(a.Router, ":"+a.Cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
		errCh <- a.server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
