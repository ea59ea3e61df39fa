package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
)

// Compile-time check to ensure redisSessionRepository implements SessionRepository
var _ interfaces.SessionRepository = (*redisSessionRepository)(nil)

type redisSessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSessionRepository creates a new Redis-backed SessionRepository.
// Сервис аутентификации ведет реестр активных сессий:
// session:{sessionID} -> userID (с TTL access-токена). Здесь мы его
// только читаем, чтобы отозванный токен перестал работать сразу.
func NewRedisSessionRepository(client *redis.Client, logger *zap.Logger) interfaces.SessionRepository {
	return &redisSessionRepository{
		client: client,
		logger: logger.Named("RedisSessionRepo"),
	}
}

// IsSessionActive reports whether the session id maps to the given user.
func (r *redisSessionRepository) IsSessionActive(ctx context.Context, userID uuid.UUID, sessionID string) (bool, error) {
	key := fmt.Sprintf("session:%s", sessionID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Session not found in registry", zap.String("sessionID", sessionID))
			return false, nil
		}
		r.logger.Error("Failed to read session from redis", zap.Error(err), zap.String("sessionID", sessionID))
		return false, fmt.Errorf("failed to read session from redis: %w", err)
	}
	return val == userID.String(), nil
}
