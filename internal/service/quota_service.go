package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

var quotaChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tale_server_quota_checks_total",
		Help: "Total quota check-and-consume attempts by class and outcome.",
	},
	[]string{"class", "outcome"},
)

// Compile-time check to ensure quotaGuardImpl implements QuotaGuard
var _ interfaces.QuotaGuard = (*quotaGuardImpl)(nil)

type quotaGuardImpl struct {
	repo   interfaces.QuotaRepository
	limits map[models.RequestClass]int
	now    func() time.Time
	logger *zap.Logger
}

// NewQuotaGuard creates the daily-limit enforcement service. limits maps
// each request class to its per-user daily cap; a class missing from the
// map is always denied.
func NewQuotaGuard(repo interfaces.QuotaRepository, limits map[models.RequestClass]int, logger *zap.Logger) interfaces.QuotaGuard {
	return &quotaGuardImpl{
		repo:   repo,
		limits: limits,
		now:    time.Now,
		logger: logger.Named("QuotaGuard"),
	}
}

// CheckAndConsume enforces the daily limit for one (user, class) pair.
// Store errors fail closed: exhausting an external quota early is
// acceptable, an unbounded cost leak is not.
func (g *quotaGuardImpl) CheckAndConsume(ctx context.Context, userID uuid.UUID, class models.RequestClass) models.RateLimitResult {
	now := g.now().UTC()
	limit := g.limits[class]
	if limit <= 0 {
		g.logger.Warn("No daily limit configured for request class, denying", zap.String("class", string(class)))
		quotaChecksTotal.With(prometheus.Labels{"class": string(class), "outcome": "denied"}).Inc()
		return models.RateLimitResult{
			Limit:     0,
			ResetAt:   models.StartOfNextDayUTC(now),
			ErrorKind: models.QuotaErrorRateLimited,
		}
	}

	rec, consumed, err := g.repo.ConsumeQuota(ctx, userID, class, limit, now)
	if err != nil {
		g.logger.Error("Quota store error, failing closed",
			zap.Error(err),
			zap.String("userID", userID.String()),
			zap.String("class", string(class)),
		)
		quotaChecksTotal.With(prometheus.Labels{"class": string(class), "outcome": "store_error"}).Inc()
		return models.RateLimitResult{
			Limit:     limit,
			ResetAt:   models.StartOfNextDayUTC(now),
			ErrorKind: models.QuotaErrorStoreFailure,
		}
	}

	if !consumed {
		quotaChecksTotal.With(prometheus.Labels{"class": string(class), "outcome": "denied"}).Inc()
		return models.RateLimitResult{
			Limit:     limit,
			ResetAt:   models.StartOfNextDayUTC(now),
			ErrorKind: models.QuotaErrorRateLimited,
		}
	}

	quotaChecksTotal.With(prometheus.Labels{"class": string(class), "outcome": "allowed"}).Inc()
	remaining := limit - rec.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	return models.RateLimitResult{
		Success:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   models.StartOfNextDayUTC(now),
	}
}

// Peek reports the current quota state without consuming a unit. Store
// errors fail closed here too, so probes never promise capacity the
// consuming path would deny.
func (g *quotaGuardImpl) Peek(ctx context.Context, userID uuid.UUID, class models.RequestClass) models.RateLimitResult {
	now := g.now().UTC()
	limit := g.limits[class]
	if limit <= 0 {
		return models.RateLimitResult{
			Limit:     0,
			ResetAt:   models.StartOfNextDayUTC(now),
			ErrorKind: models.QuotaErrorRateLimited,
		}
	}

	rec, err := g.repo.GetQuota(ctx, userID, class)
	if err != nil {
		g.logger.Error("Quota store error on peek, failing closed",
			zap.Error(err),
			zap.String("userID", userID.String()),
			zap.String("class", string(class)),
		)
		return models.RateLimitResult{
			Limit:     limit,
			ResetAt:   models.StartOfNextDayUTC(now),
			ErrorKind: models.QuotaErrorStoreFailure,
		}
	}

	used := 0
	if rec != nil && models.SameUTCDay(rec.WindowStartTime, now) {
		used = rec.RequestCount
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	res := models.RateLimitResult{
		Success:   remaining > 0,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   models.StartOfNextDayUTC(now),
	}
	if !res.Success {
		res.ErrorKind = models.QuotaErrorRateLimited
	}
	return res
}
