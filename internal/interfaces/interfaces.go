package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tale-server/internal/models"
)

// QuotaRepository persists daily request counters. ConsumeQuota performs
// the whole read-modify-write for one (user, request class) key inside a
// single transaction and returns the record state after the attempt.
// When the stored window is from a prior UTC day the count is reset to 1,
// regardless of its previous value. When the limit is already reached the
// record is returned unchanged with consumed=false.
type QuotaRepository interface {
	ConsumeQuota(ctx context.Context, userID uuid.UUID, class models.RequestClass, limit int, now time.Time) (record *models.QuotaRecord, consumed bool, err error)
	// GetQuota reads the current record without consuming. Returns
	// (nil, nil) when no record exists yet.
	GetQuota(ctx context.Context, userID uuid.UUID, class models.RequestClass) (*models.QuotaRecord, error)
}

// SessionRepository answers whether a session id is still active for a
// user. The auth service owns writes; this service only reads.
type SessionRepository interface {
	IsSessionActive(ctx context.Context, userID uuid.UUID, sessionID string) (bool, error)
}

// QuotaGuard enforces per-user daily limits for one request class.
// Peek reports the current state without consuming a unit.
type QuotaGuard interface {
	CheckAndConsume(ctx context.Context, userID uuid.UUID, class models.RequestClass) models.RateLimitResult
	Peek(ctx context.Context, userID uuid.UUID, class models.RequestClass) models.RateLimitResult
}

// NarrationClient calls the text-generation upstream.
type NarrationClient interface {
	GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string) (string, error)
}

// ImageClient renders one image for a prompt and returns its URL.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// SpeechClient synthesizes speech and returns the audio bytes.
type SpeechClient interface {
	SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, error)
}

// MediaEnricher augments a validated scene with one medium. It never
// returns a Go error: every failure is folded into the outcome so one
// medium's trouble cannot abort anything else.
type MediaEnricher interface {
	Enrich(ctx context.Context, userID uuid.UUID, prompt string, hints models.EnrichmentHints) models.MediaOutcome
}

// ClientUpdatePublisher pushes scene lifecycle events toward connected
// clients (via the message broker).
type ClientUpdatePublisher interface {
	PublishSceneGenerated(ctx context.Context, userID uuid.UUID, scene *models.FinalScene) error
}

// GenerationService runs the full rate-limited generation pipeline.
type GenerationService interface {
	GenerateScene(ctx context.Context, req *models.GenerateSceneRequest) (*models.FinalScene, error)
}
