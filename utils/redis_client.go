package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/sitecore/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// NewRedis builds a client for the cache, counter and contact keyspaces. Short
// timeouts keep a slow redis from holding requests; every caller degrades.
func NewRedis(cfg config.AppConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     32,
		MinIdleConns: 4,
		MaxRetries:   1,
	})
}

// GetRedis returns the process-wide client. A failed ping is only logged.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = NewRedis(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			Logger.Warn("redis unreachable, cache and counters will degrade",
				zap.String("addr", redisClient.Options().Addr), zap.Error(err))
		}
	})
	return redisClient
}
