package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// Compile-time check to ensure pgQuotaRepository implements QuotaRepository
var _ interfaces.QuotaRepository = (*pgQuotaRepository)(nil)

type pgQuotaRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgQuotaRepository creates a new PostgreSQL-backed QuotaRepository.
func NewPgQuotaRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.QuotaRepository {
	return &pgQuotaRepository{
		pool:   pool,
		logger: logger.Named("PgQuotaRepo"),
	}
}

// ConsumeQuota atomically reads, resets or increments the daily counter
// for one (user, request class) key. The whole read-modify-write runs in
// a single transaction with the row locked, so two concurrent requests
// can never both observe request_count < limit and both pass the limit.
func (r *pgQuotaRepository) ConsumeQuota(ctx context.Context, userID uuid.UUID, class models.RequestClass, limit int, now time.Time) (*models.QuotaRecord, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	now = now.UTC()

	// First-request fast path. ON CONFLICT DO NOTHING keeps the insert
	// race-free: the loser falls through to the locked select below.
	tag, err := tx.Exec(ctx,
		`INSERT INTO request_quotas (user_id, request_class, window_start_time, request_count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (user_id, request_class) DO NOTHING`,
		userID, class, now)
	if err != nil {
		r.logger.Error("Failed to insert quota record", zap.Error(err), zap.String("userID", userID.String()), zap.String("class", string(class)))
		return nil, false, fmt.Errorf("failed to insert quota record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit quota transaction: %w", err)
		}
		return &models.QuotaRecord{UserID: userID, RequestClass: class, WindowStartTime: now, RequestCount: 1}, true, nil
	}

	var rec models.QuotaRecord
	err = pgxscan.Get(ctx, tx, &rec,
		`SELECT user_id, request_class, window_start_time, request_count
		 FROM request_quotas
		 WHERE user_id = $1 AND request_class = $2
		 FOR UPDATE`,
		userID, class)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row vanished between insert and select (cascaded user
			// deletion). Treat as a store failure; the guard fails closed.
			return nil, false, fmt.Errorf("quota record disappeared mid-transaction: %w", err)
		}
		r.logger.Error("Failed to select quota record", zap.Error(err), zap.String("userID", userID.String()), zap.String("class", string(class)))
		return nil, false, fmt.Errorf("failed to select quota record: %w", err)
	}

	switch {
	case !models.SameUTCDay(rec.WindowStartTime, now):
		// Окно из предыдущего дня: сбрасываем счетчик в 1, а не инкрементируем.
		rec.WindowStartTime = now
		rec.RequestCount = 1
	case rec.RequestCount < limit:
		rec.RequestCount++
	default:
		// Лимит исчерпан, запись не меняем.
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit quota transaction: %w", err)
		}
		return &rec, false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE request_quotas
		 SET window_start_time = $3, request_count = $4
		 WHERE user_id = $1 AND request_class = $2`,
		userID, class, rec.WindowStartTime, rec.RequestCount)
	if err != nil {
		r.logger.Error("Failed to update quota record", zap.Error(err), zap.String("userID", userID.String()), zap.String("class", string(class)))
		return nil, false, fmt.Errorf("failed to update quota record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit quota transaction: %w", err)
	}
	return &rec, true, nil
}

// GetQuota reads the current counter without consuming or locking.
func (r *pgQuotaRepository) GetQuota(ctx context.Context, userID uuid.UUID, class models.RequestClass) (*models.QuotaRecord, error) {
	var rec models.QuotaRecord
	err := pgxscan.Get(ctx, r.pool, &rec,
		`SELECT user_id, request_class, window_start_time, request_count
		 FROM request_quotas
		 WHERE user_id = $1 AND request_class = $2`,
		userID, class)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to read quota record", zap.Error(err), zap.String("userID", userID.String()), zap.String("class", string(class)))
		return nil, fmt.Errorf("failed to read quota record: %w", err)
	}
	return &rec, nil
}
