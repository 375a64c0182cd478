package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/config"
	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/invalidation"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/routes"
	"github.com/cppla/sitecore/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)
	rdb := utils.GetRedis()

	var store cache.Store
	switch cfg.CacheDriver {
	case "memory":
		store = cache.NewMemoryStore(cfg.CacheMemorySize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	default:
		store = cache.NewRedisStore(rdb, cfg.CachePrefix, utils.Logger)
	}

	router := invalidation.NewRouter(store, utils.Logger,
		invalidation.WithMode(invalidation.Mode(cfg.InvalidationMode)),
		invalidation.WithTimeout(time.Duration(cfg.InvalidationTimeoutSec)*time.Second))
	router.DependOn(repository.HomeSummaryKey, cachekeys.Page, cachekeys.Research)

	var pending counter.PendingStore
	switch cfg.CounterStore {
	case "memory":
		pending = counter.NewMemoryPendingStore(nil)
	default:
		pending = counter.NewRedisPendingStore(rdb, "research")
	}
	sweepInterval := time.Duration(cfg.CounterSweepIntervalSec) * time.Second
	research := repository.NewResearchRepository(db, store, time.Duration(cfg.CacheTTLSeconds)*time.Second, utils.Logger)
	batcher := counter.NewBatcher(pending, research, utils.Logger,
		counter.WithTTL(time.Duration(cfg.CounterTTLSeconds)*time.Second),
		counter.WithLookahead(sweepInterval),
		counter.WithPolicies(map[counter.Kind]counter.Policy{
			counter.Views:     {Threshold: int64(cfg.CounterViewsThreshold)},
			counter.Downloads: {Threshold: int64(cfg.CounterDownloadsThreshold)},
		}))

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		batcher.RunSweeper(sweepCtx, sweepInterval)
	}()

	r := routes.SetupRouter(routes.Deps{
		DB:      db,
		Store:   store,
		Router:  router,
		Batcher: batcher,
		Redis:   rdb,
		Mailer:  utils.NewSMTPMailer(cfg),
		Log:     utils.Logger,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	err := utils.GraceServer(":"+cfg.AppPort, r)

	// Requests have drained; flush what they left pending.
	stopSweeper()
	<-sweeperDone
	router.Wait()
	if err != nil {
		utils.Logger.Fatal("server stopped with error", zap.Error(err))
	}
	utils.Logger.Info("server stopped")
}
