package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	BackendRedis   = "redis"
	BackendLocal   = "local"
	BackendMemory  = "memory"
	BackendDB      = "db"
	BackendLevelDB = "leveldb"
)

// AppConfig 进程配置，通过环境变量注入
type AppConfig struct {
	HTTPAddr string

	// mysql / sqlite
	DBDriver string
	DSN      string

	RedisNetwork  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// 订单锁：redis / local
	LockBackend string
	// 事务日志：db / leveldb
	TXLogBackend string
	LevelDBPath  string
	// 幂等记录：redis / memory
	IdempotencyBackend string

	LockExpire     time.Duration
	Scenes         []string
	SweepTick      time.Duration
	PendingTimeout time.Duration
	SweepBatch     int

	// 写接口每秒请求数上限
	RateLimit float64
	RateBurst int

	LogFile  string
	LogLevel string
}

// Load 读取并校验配置，缺失时使用默认值
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DSN:                getEnv("DB_DSN", "ordertcc.db"),
		RedisNetwork:       getEnv("REDIS_NETWORK", "tcp"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		LockBackend:        getEnv("LOCK_BACKEND", BackendLocal),
		TXLogBackend:       getEnv("TXLOG_BACKEND", BackendDB),
		LevelDBPath:        getEnv("LEVELDB_PATH", "ordertcc_txlog"),
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", BackendMemory),
		Scenes:             splitCSV(getEnv("SCENES", "")),
		LogFile:            getEnv("LOG_FILE", "./logs/ordertcc.log"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RedisDB, err = cast.ToIntE(getEnv("REDIS_DB", "0")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.LockExpire, err = cast.ToDurationE(getEnv("LOCK_EXPIRE", "10s")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOCK_EXPIRE: %w", err)
	}
	if cfg.SweepTick, err = cast.ToDurationE(getEnv("SWEEP_TICK", "10s")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SWEEP_TICK: %w", err)
	}
	if cfg.PendingTimeout, err = cast.ToDurationE(getEnv("PENDING_TIMEOUT", "15m")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid PENDING_TIMEOUT: %w", err)
	}
	if cfg.SweepBatch, err = cast.ToIntE(getEnv("SWEEP_BATCH", "100")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SWEEP_BATCH: %w", err)
	}
	if cfg.RateLimit, err = cast.ToFloat64E(getEnv("RATE_LIMIT", "200")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}
	if cfg.RateBurst, err = cast.ToIntE(getEnv("RATE_BURST", "400")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid RATE_BURST: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *AppConfig) validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or sqlite, got: %s", c.DBDriver)
	}
	if c.DSN == "" {
		return fmt.Errorf("DB_DSN must not be empty")
	}
	if c.LockBackend != BackendRedis && c.LockBackend != BackendLocal {
		return fmt.Errorf("LOCK_BACKEND must be redis or local, got: %s", c.LockBackend)
	}
	if c.TXLogBackend != BackendDB && c.TXLogBackend != BackendLevelDB {
		return fmt.Errorf("TXLOG_BACKEND must be db or leveldb, got: %s", c.TXLogBackend)
	}
	if c.IdempotencyBackend != BackendRedis && c.IdempotencyBackend != BackendMemory {
		return fmt.Errorf("IDEMPOTENCY_BACKEND must be redis or memory, got: %s", c.IdempotencyBackend)
	}
	if c.UseRedis() && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must not be empty")
	}
	if c.LockExpire <= 0 || c.SweepTick <= 0 || c.PendingTimeout <= 0 {
		return fmt.Errorf("LOCK_EXPIRE, SWEEP_TICK and PENDING_TIMEOUT must be > 0")
	}
	if c.SweepBatch <= 0 {
		return fmt.Errorf("SWEEP_BATCH must be > 0")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT and RATE_BURST must be > 0")
	}
	return nil
}

// UseRedis 是否有组件依赖 redis
func (c *AppConfig) UseRedis() bool {
	return c.LockBackend == BackendRedis || c.IdempotencyBackend == BackendRedis
}

// getEnv 读取字符串环境变量，若为空则返回默认值
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
