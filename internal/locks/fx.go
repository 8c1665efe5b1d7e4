package locks

import (
	"github.com/copiflow/copiflow/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the device locker. A Redis-backed lease is used when a
// Redis address is configured; otherwise the process-local mutex is enough.
var Module = fx.Module("locks",
	fx.Provide(Provide),
)

func Provide(cfg config.Config, log *zap.Logger) DeviceLocker {
	if cfg.RedisAddr == "" {
		return NewKeyedMutex()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisLocker(client, log)
}
