package store

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/evdnx/gotsrl/config"
)

// Open builds the backend described by cfg, wrapped in a breaker when
// cfg.Breaker is set.
func Open(cfg config.StoreConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var s Store
	switch cfg.Kind {
	case "file":
		s = NewFileStore(cfg.Path)
	case "memory":
		s = NewMemoryStore()
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s = NewRedisStore(client, cfg.RedisKey, cfg.Timeout)
	case "postgres":
		pg, err := OpenPostgres(cfg.PostgresDSN, cfg.TableName, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		s = pg
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
	if cfg.Breaker {
		s = NewBreakerStore(s, "qtable-"+cfg.Kind, 3, 30*time.Second)
	}
	return s, nil
}
