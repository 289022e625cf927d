package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/licensegate/internal/infrastructure/redis"
)

// RedisSessionStore records terminated sessions in Redis. Tokens are
// stateless JWTs, so logout works as a denylist keyed by the token's jti
// with a TTL equal to the token's remaining lifetime: once the token would
// have expired anyway, the entry can go.
type RedisSessionStore struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRedisSessionStore creates a new session store
func NewRedisSessionStore(redisClient *redis.Client, logger *slog.Logger) *RedisSessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSessionStore{
		redis:  redisClient,
		logger: logger,
	}
}

func sessionKey(jti string) string {
	return "session:revoked:" + jti
}

// Revoke invalidates a session immediately
func (s *RedisSessionStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second // already expired, keep the entry briefly anyway
	}
	if err := s.redis.Set(ctx, sessionKey(jti), "1", ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.logger.Debug("session revoked", slog.String("jti", jti))
	return nil
}

// IsRevoked reports whether a session has been terminated
func (s *RedisSessionStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := s.redis.Exists(ctx, sessionKey(jti))
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return revoked, nil
}
