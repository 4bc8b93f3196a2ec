package registry

import (
	"context"

	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/registry/memory"
	redisreg "streamcast/internal/infrastructure/registry/redis"
	"streamcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory creates the room registry with fallback support: Redis when
// configured and reachable, in-process memory otherwise.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewFactory creates a new registry factory
func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	factory := &Factory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisreg.NewClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory registry",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis room registry")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory room registry")
	}

	return factory, nil
}

// CreateRoomRegistry creates the room registry (Redis or memory with fallback)
func (f *Factory) CreateRoomRegistry() ports.RoomRegistry {
	if f.useRedis && f.redisClient != nil {
		return redisreg.NewRegistry(f.redisClient)
	}
	return memory.NewRegistry()
}

// Close closes the Redis connection if used
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return redisreg.CloseClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
