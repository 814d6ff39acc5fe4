package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/xiaoxuxiansheng/ordertcc"
	"github.com/xiaoxuxiansheng/ordertcc/example"
	"github.com/xiaoxuxiansheng/ordertcc/example/config"
	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
	"github.com/xiaoxuxiansheng/ordertcc/example/httpapi"
	"github.com/xiaoxuxiansheng/ordertcc/example/pkg"
	"github.com/xiaoxuxiansheng/ordertcc/idempotent"
	"github.com/xiaoxuxiansheng/ordertcc/lock"
	"github.com/xiaoxuxiansheng/ordertcc/log"
	"github.com/xiaoxuxiansheng/ordertcc/metrics"
	"github.com/xiaoxuxiansheng/ordertcc/txlog"
	"github.com/xiaoxuxiansheng/redis_lock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed, err: %v", err)
	}

	log.SetDefaultLogger(log.NewSugarLogger(log.NewOptions(
		log.WithFileName(cfg.LogFile),
		log.WithLogLevel(cfg.LogLevel),
		log.WithStdout(true),
	)))

	db, err := pkg.OpenDB(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatalf("open db failed, err: %v", err)
	}
	if cfg.DBDriver == pkg.DriverSQLite {
		if err = expdao.AutoMigrate(db); err != nil {
			log.Fatalf("migrate db failed, err: %v", err)
		}
	}

	var redisClient *redis_lock.Client
	if cfg.LockBackend == config.BackendRedis {
		redisClient = pkg.NewRedisClient(cfg.RedisNetwork, cfg.RedisAddr, cfg.RedisPassword)
	}

	txLogStore, closer, err := newTXLogStore(cfg, db)
	if err != nil {
		log.Fatalf("open tx log store failed, err: %v", err)
	}
	defer closer.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics().MustRegister(registry)

	orders := example.NewOrderStore(expdao.NewOrderDAO(db))
	var goodsReader ordertcc.GoodsReader = example.NewGoodsReader(expdao.NewGoodsDAO(db))
	var goodsCache *example.CachedGoodsReader
	if redisClient != nil {
		goodsCache = example.NewCachedGoodsReader(redisClient, goodsReader)
		goodsReader = goodsCache
	}

	coordinator := ordertcc.NewTXCoordinator(
		txlog.NewService(txLogStore),
		newLocker(redisClient),
		orders,
		goodsReader,
		example.NewWalletSettler(expdao.NewWalletDAO(db)),
		ordertcc.WithLockExpire(cfg.LockExpire),
		ordertcc.WithScenes(cfg.Scenes...),
		ordertcc.WithMetrics(m),
	)

	sweeper := ordertcc.NewSweeper(coordinator,
		ordertcc.WithSweepTick(cfg.SweepTick),
		ordertcc.WithPendingTimeout(cfg.PendingTimeout),
		ordertcc.WithSweepBatch(cfg.SweepBatch),
	)
	sweeper.Start()
	defer sweeper.Stop()

	goodsService := example.NewGoodsService(expdao.NewGoodsDAO(db), newIdempotentExecutor(cfg), goodsCache)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.Setup(r, httpapi.NewServer(coordinator, orders, goodsService), rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst), registry)

	srv := http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("ordertccd listening on %s, scenes: %v", cfg.HTTPAddr, coordinator.Scenes())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server exited, err: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown http server failed, err: %v", err)
	}
	log.Infof("ordertccd stopped")
}

func newLocker(client *redis_lock.Client) lock.Locker {
	if client == nil {
		return lock.NewLocalLocker()
	}
	return lock.NewRedisLocker(client)
}

func newTXLogStore(cfg config.AppConfig, db *gorm.DB) (txlog.Store, io.Closer, error) {
	if cfg.TXLogBackend == config.BackendLevelDB {
		store, err := txlog.OpenLevelDBStore(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	return example.NewTXLogStore(expdao.NewTXLogDAO(db)), io.NopCloser(nil), nil
}

func newIdempotentExecutor(cfg config.AppConfig) *idempotent.Executor {
	if cfg.IdempotencyBackend == config.BackendRedis {
		rdb := pkg.NewGoRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return idempotent.NewExecutor(idempotent.NewRedisStore(rdb))
	}
	return idempotent.NewExecutor(idempotent.NewMemoryStore())
}
