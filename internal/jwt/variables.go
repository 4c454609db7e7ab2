package jwt

import (
	"sync"
	"time"

	"chatdesk-backend/internal/env"

	"github.com/go-redis/redis/v8"
)

const RefreshTokenTTL = 24 * 30 * time.Hour

var (
	redisOnce   sync.Once
	redisClient *redis.Client
)

func roleSecret(role Role) (string, bool) {
	switch role {
	case RoleOperator:
		return env.Get(env.OperatorSecret), true
	}
	return "", false
}

// refreshStore lazily connects to the redis instance holding refresh
// tokens. Connecting on first use keeps the package importable without
// a configured environment.
func refreshStore() *redis.Client {
	redisOnce.Do(func() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     env.Get(env.NotifyRedisURL),
			Password: env.Get(env.NotifyRedisPass),
			DB:       1,
		})
	})
	return redisClient
}
