package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/cache"
	"github.com/mysterria/silkroad/config"
	dbadapter "github.com/mysterria/silkroad/db"
	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"github.com/mysterria/silkroad/model"
	"github.com/mysterria/silkroad/notify"
	"github.com/mysterria/silkroad/plugin/hook"
	"github.com/mysterria/silkroad/scheduler"
	"github.com/mysterria/silkroad/storage"
	"github.com/mysterria/silkroad/wallet"
	"go.uber.org/zap"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	cacheBackend, err := cache.Open(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		KeyPrefix:       cfg.Cache.KeyPrefix,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer cacheBackend.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Item catalog ----
	catalog := item.NewCatalog(cfg.Items.DefaultMaxStack, cfg.Items.MaxStack, cfg.Items.Restrict)

	// ---- Record store ----
	var store caravan.Store
	switch cfg.Storage.Mode {
	case "db":
		store = storage.NewDBStore(db, catalog, logger)
	case "file":
		fs, err := storage.NewFileStore(cfg.Storage.DataDir, catalog, logger)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = fs
	default:
		log.Fatalf("storage: unknown mode %q", cfg.Storage.Mode)
	}
	logger.Info("Record store initialized", zap.String("mode", cfg.Storage.Mode))

	// ---- Hooks ----
	hooks := hook.NewCenter(logger)
	hooks.Register(hook.AfterTransferFailed, 100, "log_failed", func(_ context.Context, _ string, payload any) error {
		if t, ok := payload.(*caravan.Transfer); ok {
			logger.Warn("transfer lost in transit",
				zap.String("transfer", t.ID),
				zap.String("initiator", t.InitiatorID),
				zap.String("destination", t.DestinationCaravanID))
		}
		return nil
	})

	// ---- Registry ----
	reg := caravan.NewRegistry(
		caravan.ConfigFrom(cfg.Transfer, catalog),
		store,
		wallet.NewService(db, logger),
		notify.NewPubSubNotifier(cacheBackend.PubSub, logger),
		cacheBackend.Cache,
		logger,
		caravan.WithAuditor(auditSvc),
		caravan.WithHooks(hooks),
	)
	ctx := context.Background()
	if err := reg.Load(ctx); err != nil {
		log.Fatalf("registry load: %v", err)
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	settler := caravan.NewSettler(reg, sched, cfg.Transfer.SettleInterval, logger)
	settler.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("Silk road running", zap.Int("caravans", len(reg.AllCaravans())))
	s := <-sig
	logger.Info("Shutting down", zap.String("signal", s.String()))

	settler.Stop()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := reg.Close(shutdownCtx); err != nil {
		logger.Error("registry flush failed", zap.Error(err))
	}
	auditSvc.Stop(shutdownCtx)
}
