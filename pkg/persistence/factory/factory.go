package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/flat-merkle-go/pkg/config"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence/badger"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence/memory"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence/redis"
)

// NewPersistence opens the backend selected by cfg.Type and verifies it is healthy.
func NewPersistence(cfg *config.PersistenceConfig, logger *zap.Logger) (persistence.ITreePersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("persistence config cannot be nil")
	}

	var (
		store persistence.ITreePersistence
		err   error
	)
	switch cfg.Type {
	case config.PersistenceTypeMemory:
		store = memory.NewMemoryPersistence(logger)
	case config.PersistenceTypeBadger:
		store, err = badger.NewBadgerPersistence(cfg.DataPath, logger)
	case config.PersistenceTypeRedis:
		store, err = redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s persistence: %w", cfg.Type, err)
	}

	// Fail fast on a broken backend
	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s persistence health check failed: %w", cfg.Type, err)
	}

	return store, nil
}
