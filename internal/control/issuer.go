// Package control assembles the issuance platform: storage, cache,
// notification dispatch, the orchestration services and the HTTP front
// end, with one lifecycle around all of them.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chainmint/issuer/internal/api"
	"github.com/chainmint/issuer/internal/core/config"
	"github.com/chainmint/issuer/internal/core/worker"
	"github.com/chainmint/issuer/internal/infra/chain"
	redisclient "github.com/chainmint/issuer/internal/infra/redis"
	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/infra/storage/memory"
	"github.com/chainmint/issuer/internal/infra/storage/postgres"
	"github.com/chainmint/issuer/internal/issuance/audit"
	"github.com/chainmint/issuer/internal/issuance/notify"
	"github.com/chainmint/issuer/internal/issuance/status"
	"github.com/chainmint/issuer/internal/issuance/workflow"
)

// Issuer is the main application struct that manages the platform
// lifecycle.
type Issuer struct {
	cfg        *config.AppConfig
	server     *api.Server
	dispatcher *notify.Dispatcher
	sweeper    *worker.Sweeper
	db         *postgres.DB
	redis      *redisclient.Client
	status     *status.Service
	deployer   *workflow.Deployer
	log        *slog.Logger
}

// NewIssuer creates the application with all dependencies initialized.
// Without a database URL it runs on in-memory storage; without a redis
// URL the idempotency stores are in-memory as well.
func NewIssuer(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Issuer, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Storage
	var repo storage.DeploymentRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		repo = postgres.NewDeploymentRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewDeploymentRepo()
		log.Info("Using Memory storage")
	}

	// 2. Idempotency stores
	var redisClient *redisclient.Client
	var replays, exportCache storage.IdempotencyStore
	var sweeper *worker.Sweeper

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		replays = redisclient.NewIdempotencyStore(redisClient)
		exportCache = redisclient.NewIdempotencyStore(redisClient)
		log.Info("Using Redis idempotency store")
	} else {
		replayStore := memory.NewIdempotencyStore()
		cacheStore := memory.NewIdempotencyStore()
		replays = replayStore
		exportCache = cacheStore
		// Redis expires keys natively; only the memory stores need a sweep.
		sweeper = worker.NewSweeper([]worker.ExpiringStore{replayStore, cacheStore}, 5*time.Minute, log)
		log.Info("Using Memory idempotency store")
	}

	// 3. Notification dispatch
	var dispatcher *notify.Dispatcher
	var notifier status.Notifier
	if cfg.Webhook.URL != "" {
		sender := notify.NewWebhookSender(cfg.Webhook.URL, cfg.Webhook.SendTimeout)
		dispatcher = notify.NewDispatcher(sender, notify.Config{
			QueueSize:   cfg.Webhook.QueueSize,
			Workers:     cfg.Webhook.Workers,
			MaxAttempts: cfg.Webhook.MaxAttempts,
			BaseDelay:   cfg.Webhook.BaseDelay,
		}, log)
		notifier = dispatcher
	}

	// 4. Services
	statusSvc := status.NewService(repo, notifier, log)

	// The simulator is the only submitter shipped today; a real chain
	// connector plugs in here once one exists.
	if !cfg.Submission.Simulated {
		return nil, fmt.Errorf("no live chain connector is available, set submission.simulated")
	}
	var submitter chain.Submitter = chain.NewSimulatedSubmitter(cfg.Submission.Latency)

	deployer := workflow.NewDeployer(statusSvc, submitter, replays, cfg.EnabledNetworks(), log)
	auditSvc := audit.NewService(repo, exportCache, log)

	// 5. HTTP front end
	handler := api.NewHandler(deployer, statusSvc, auditSvc, log)
	server := api.NewServer(api.ServerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler, log)

	return &Issuer{
		cfg:        cfg,
		server:     server,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		db:         db,
		redis:      redisClient,
		status:     statusSvc,
		deployer:   deployer,
		log:        log,
	}, nil
}

// StatusService exposes the tracking service for CLI commands.
func (i *Issuer) StatusService() *status.Service { return i.status }

// Deployer exposes the workflow for CLI commands.
func (i *Issuer) Deployer() *workflow.Deployer { return i.deployer }

// Run serves until ctx is cancelled, then shuts the platform down in
// dependency order.
func (i *Issuer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if i.dispatcher != nil {
		i.dispatcher.Start(gctx)
	}
	if i.sweeper != nil {
		go i.sweeper.Start(gctx)
	}

	g.Go(func() error {
		return i.server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		return i.shutdown()
	})

	return g.Wait()
}

func (i *Issuer) shutdown() error {
	i.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := i.server.Shutdown(ctx); err != nil {
		i.log.Error("http shutdown failed", "error", err)
	}
	if i.dispatcher != nil {
		i.dispatcher.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.log.Error("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			i.log.Error("db close failed", "error", err)
		}
	}
	return nil
}
