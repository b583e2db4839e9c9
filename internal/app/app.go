package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/data/db"
	"github.com/yungbote/docforge-backend/internal/data/repos"
	apphttp "github.com/yungbote/docforge-backend/internal/http"
	"github.com/yungbote/docforge-backend/internal/jobs/partitions"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

const serviceName = "docforge"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Repos
	Services Services
	Handlers Handlers
	Server   *apphttp.Server
	Metrics  *observability.Metrics
	Notifier notify.JobNotifier

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

// New connects to Postgres, migrates the schema and wires every component.
// Nothing is started until Run.
func New(ctx context.Context, log *logger.Logger, cfg Config, version string) (*App, error) {
	shutdown := observability.InitOTel(ctx, log, cfg.OtelSettings(version))

	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := prepareSchema(ctx, log, cfg, pg.DB()); err != nil {
		_ = pg.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	a, err := assemble(log, cfg, pg.DB())
	if err != nil {
		_ = pg.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	a.pg = pg
	a.otelShutdown = shutdown
	return a, nil
}

func assemble(log *logger.Logger, cfg Config, theDB *gorm.DB) (*App, error) {
	notifier, err := notify.New(log, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init notifier: %w", err)
	}
	metrics := observability.Init(log, observability.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
	})

	reposet := repos.New(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, notifier)
	if err != nil {
		_ = notifier.Close()
		return nil, err
	}
	handlerset := wireHandlers(theDB, log, serviceset)

	server := apphttp.NewServer(cfg.HTTP.Addr, apphttp.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		ServiceName:       otelServiceName(cfg),
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		HealthHandler:     handlerset.Health,
		GenerationHandler: handlerset.Generation,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Handlers: handlerset,
		Server:   server,
		Metrics:  metrics,
		Notifier: notifier,
	}, nil
}

func otelServiceName(cfg Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return serviceName
}

// Run starts the background workers and serves HTTP until ctx is done or the
// server fails, then shuts everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.Redis.Addr)
	a.Metrics.StartQueueCollector(ctx, a.Log, a.DB)

	if a.Cfg.Poller.Enabled {
		a.Services.Poller.Start(ctx)
	} else {
		a.Log.Info("Generation poller disabled")
	}
	if a.Services.Scheduler != nil {
		if err := a.Services.Scheduler.Start(ctx); err != nil {
			a.Services.Poller.Stop()
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Run() }()
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		if runErr != nil {
			a.Log.Error("HTTP server failed", "error", runErr)
		}
	}
	a.shutdown()
	return runErr
}

// shutdown stops accepting requests, then lets in-flight generation finish
// before the pool, notifier and database go away.
func (a *App) shutdown() {
	a.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("HTTP shutdown", "error", err)
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	a.Services.Poller.Stop()
	a.Close()
}

// Close releases everything New acquired. Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Pool != nil {
		a.Services.Pool.Close()
		a.Services.Pool = nil
	}
	if a.Notifier != nil {
		if err := a.Notifier.Close(); err != nil {
			a.Log.Warn("Notifier close", "error", err)
		}
		a.Notifier = nil
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("Postgres close", "error", err)
		}
		a.pg = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown", "error", err)
		}
		cancel()
		a.otelShutdown = nil
	}
	a.Log.Sync()
}

// prepareSchema migrates and then creates the partitions current writes
// land in. Requests are accepted only after it returns, and it runs whether
// or not scheduled partition maintenance is enabled.
func prepareSchema(ctx context.Context, log *logger.Logger, cfg Config, theDB *gorm.DB) error {
	if err := db.Migrate(theDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if theDB.Dialector.Name() != "postgres" {
		return nil
	}
	if _, err := newMaintainer(theDB, log, cfg).Ensure(ctx); err != nil {
		return fmt.Errorf("initial partitions: %w", err)
	}
	return nil
}

// RunMigrations applies the schema, creates the current partitions and exits.
func RunMigrations(ctx context.Context, log *logger.Logger, cfg Config) error {
	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pg.Close()
	if err := prepareSchema(ctx, log, cfg, pg.DB()); err != nil {
		return err
	}
	log.Info("Migrations applied")
	return nil
}

// RunPartitions performs one partition maintenance pass.
func RunPartitions(ctx context.Context, log *logger.Logger, cfg Config) (partitions.Report, error) {
	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return partitions.Report{}, fmt.Errorf("init postgres: %w", err)
	}
	defer pg.Close()
	return newMaintainer(pg.DB(), log, cfg).Run(ctx)
}
