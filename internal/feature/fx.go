package feature

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/astraops/paygate/internal/config"
)

// Module wires the redis client and the flag service.
var Module = fx.Module("feature.flags",
	fx.Provide(
		NewRedisClient,
		New,
	),
)

// NewRedisClient opens the redis connection and closes it on shutdown.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) redis.UniversalClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})
	return rdb
}
