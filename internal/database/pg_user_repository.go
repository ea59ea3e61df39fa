package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// UserRepository keeps the local user rows that quota records reference.
// User identity is owned by the auth service; this service only mirrors
// ids so the request_quotas foreign key (with cascading cleanup) holds.
type UserRepository interface {
	EnsureUser(ctx context.Context, userID uuid.UUID) error
}

var _ UserRepository = (*pgUserRepository)(nil)

type pgUserRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgUserRepository creates a new PostgreSQL-backed UserRepository.
func NewPgUserRepository(pool *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &pgUserRepository{
		pool:   pool,
		logger: logger.Named("PgUserRepo"),
	}
}

// EnsureUser inserts the user row if it is not mirrored yet.
func (r *pgUserRepository) EnsureUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		userID, userID.String())
	if err != nil {
		r.logger.Error("Failed to ensure user row", zap.Error(err), zap.String("userID", userID.String()))
		return fmt.Errorf("failed to ensure user row: %w", err)
	}
	return nil
}
