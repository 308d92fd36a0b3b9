package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	"github.com/yungbote/knowledge-indexer/internal/data/db"
	"github.com/yungbote/knowledge-indexer/internal/http"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services
	Indexing Indexing
	Jobs     Jobs
	Router   *gin.Engine

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func newLogger(mode string) (*logger.Logger, error) {
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()
	log, err := newLogger(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, err
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	pg, err := db.NewPostgresService(db.PostgresConfigFromEnv(), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pg = pg
	a.DB = pg.DB()
	if cfg.AutoMigrate {
		if err := db.AutoMigrateAll(a.DB); err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}

	if a.Clients, err = wireClients(ctx, log, cfg, a.Metrics); err != nil {
		a.Close()
		return nil, err
	}
	a.Repos = wireRepos(a.DB, log, cfg, a.Clients)
	if a.Indexing, err = wireIndexing(log, cfg, a.Clients, a.Repos, a.Metrics); err != nil {
		a.Close()
		return nil, err
	}
	if a.Services, err = wireServices(log, cfg, a.Clients, a.Repos); err != nil {
		a.Close()
		return nil, err
	}
	if a.Jobs, err = wireJobs(log, cfg, a.Clients, a.Repos, a.Indexing, a.Metrics); err != nil {
		a.Close()
		return nil, err
	}
	a.Router = wireRouter(log, cfg, a.DB, a.Services, a.Metrics)
	return a, nil
}

// RunServer serves the HTTP API and runs the job executor until ctx is done.
func (a *App) RunServer(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Cfg.validateAuth(); err != nil {
		return err
	}
	a.startBackground(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return http.NewServer(a.Log, a.Router).Run(gctx, a.Cfg.HTTPAddr)
	})
	g.Go(func() error { return a.Jobs.start(gctx) })
	return ignoreCanceled(g.Wait())
}

// RunWorker runs only the job executor.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	a.startBackground(ctx)
	return ignoreCanceled(a.Jobs.start(ctx))
}

// Watch streams indexing status events until ctx is done.
func (a *App) Watch(ctx context.Context, onEvent func(redis.StatusEvent)) error {
	if a.Clients.Status == nil {
		return fmt.Errorf("status events need REDIS_ADDR")
	}
	return ignoreCanceled(a.Clients.Status.Subscribe(ctx, onEvent))
}

func (a *App) startBackground(ctx context.Context) {
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Jobs.close()
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// Migrate creates or updates the schema without wiring any other client.
func Migrate(ctx context.Context) error {
	cfg := LoadConfig()
	log, err := newLogger(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(db.PostgresConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pg.Close()
	if err := db.AutoMigrateAll(pg.DB().WithContext(ctx)); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	log.Info("schema migrated")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
