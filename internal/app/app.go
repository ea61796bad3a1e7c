// Package app assembles the till: storage tiers, request coordinator,
// queue, sync engine, connectivity and the local HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/config"
	"biliticket/possync/internal/connectivity"
	"biliticket/possync/internal/handler"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
	"biliticket/possync/internal/service"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB      *gorm.DB
	Durable repository.DurableStore
	redis   *redis.Client

	Store   repository.PersistentStore
	Cache   repository.EntityCache
	Queue   *service.OfflineQueue
	Client  *apiclient.Client
	Engine  *service.SyncEngine
	Network *service.NetworkManager
	Orders  *service.OrderService
	Catalog *service.CatalogService
	Auth    *service.AuthService
	Router  *gin.Engine
}

// New opens storage and builds every component. Background syncs started
// by the network manager live under ctx.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	db, err := config.NewDurableDB(cfg)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if cfg.Storage.Durable.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	var fast repository.StateStore
	switch cfg.Storage.FastTier.Backend {
	case "redis":
		rc, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rc
		fast = repository.NewRedisStateStore(rc, "possync:"+cfg.POS.TerminalID+":")
	case "memory", "":
		if path := cfg.Storage.FastTier.SnapshotPath; path != "" {
			if fast, err = repository.NewSnapshotStateStore(cfg.Storage.FastTier.QuotaBytes, path); err != nil {
				a.Close()
				return nil, err
			}
		} else {
			fast = repository.NewMemoryStateStore(cfg.Storage.FastTier.QuotaBytes)
		}
	default:
		a.Close()
		return nil, fmt.Errorf("unknown fast tier backend: %s", cfg.Storage.FastTier.Backend)
	}

	a.Durable = repository.NewPGDurableStore(db)
	a.Store = repository.NewTieredStore(fast, a.Durable, repository.TieredOptions{
		SizeThreshold: cfg.Storage.SizeThreshold,
		DurableTTL:    cfg.Storage.DurableTTL,
		Logger:        logger.Named("store"),
	})
	a.Cache = repository.NewPGEntityCache(db)
	a.Queue = service.NewOfflineQueue(repository.NewPGQueueRepository(db), logger.Named("queue"))

	a.Client = apiclient.New(a.Store, apiclient.Options{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.RequestTimeout,
		Logger:  logger.Named("api"),
	})
	a.Engine = service.NewSyncEngine(a.Queue, a.Cache, a.Store, a.Client, logger.Named("sync"))

	a.Network, err = service.NewNetworkManager(ctx, a.Store, a.Queue, a.Engine, logger.Named("network"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orders = service.NewOrderService(a.Client, a.Cache, a.Queue, a.Network, service.OrderServiceOptions{
		TerminalID: cfg.POS.TerminalID,
		TaxRate:    cfg.POS.TaxRate,
		Logger:     logger.Named("orders"),
	})
	a.Catalog = service.NewCatalogService(a.Client, a.Orders, a.Cache, a.Network, logger.Named("catalog"))
	a.Auth = service.NewAuthService(a.Client, a.Network, logger.Named("auth"))

	a.Router = handler.SetupRouter(cfg, logger, a.Client, handler.Handlers{
		Auth:    handler.NewAuthHandler(a.Auth, a.Catalog),
		Status:  handler.NewStatusHandler(a.Network, a.Engine, a.Queue),
		Queue:   handler.NewQueueHandler(a.Queue, a.Engine),
		Catalog: handler.NewCatalogHandler(a.Catalog),
		Orders:  handler.NewOrderHandler(a.Orders),
	})
	return a, nil
}

// Run serves the local API, holds the heartbeat and runs the periodic sync
// until ctx is done, then shuts the server down gracefully. Queue items a
// crash left in processing are failed and expired durable rows are dropped
// before anything is served.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config
	if _, err := a.Engine.RecoverInterrupted(ctx); err != nil {
		return err
	}
	purged, err := a.Durable.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge expired values: %w", err)
	}
	if purged > 0 {
		a.Logger.Info("expired stored values purged", zap.Int64("count", purged))
	}
	heartbeat, err := connectivity.HeartbeatURL(cfg.Remote.BaseURL, cfg.Remote.HeartbeatPath)
	if err != nil {
		return fmt.Errorf("heartbeat url: %w", err)
	}
	watcher := connectivity.NewWatcher(heartbeat, a.Network.SetOnline, connectivity.Options{
		Backoff: connectivity.Backoff{
			Initial:      cfg.Remote.ReconnectInitial,
			Max:          cfg.Remote.ReconnectMax,
			Multiplier:   2,
			JitterFactor: 0.3,
		},
		Logger: a.Logger.Named("heartbeat"),
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("local api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return watcher.Run(gctx) })
	if cfg.POS.SyncInterval > 0 {
		g.Go(func() error {
			a.periodicSync(gctx, cfg.POS.SyncInterval)
			return nil
		})
	}

	err = g.Wait()
	a.Network.Wait()
	return err
}

func (a *App) periodicSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.SyncIfPending(ctx)
		}
	}
}

// SyncIfPending runs a sync when the till is online and has queued work.
func (a *App) SyncIfPending(ctx context.Context) {
	if a.Network.EffectiveOffline() {
		return
	}
	pending, err := a.Queue.Count(ctx, model.QueueStatusPending)
	if err != nil || pending == 0 {
		return
	}
	report, err := a.Engine.SyncWithServer(ctx)
	switch {
	case err != nil:
		a.Logger.Warn("periodic sync stopped", zap.Error(err), zap.Int("deferred", report.Deferred))
	default:
		a.Logger.Info("periodic sync finished",
			zap.Int("completed", report.Completed), zap.Int("failed", report.Failed))
	}
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
