package service

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// illustrativeKeywords mark visual styles that should not drift into
// photorealism. Photographic styles get no negative instruction.
var illustrativeKeywords = []string{
	"painting", "painted", "watercolor", "oil", "anime", "manga",
	"sketch", "drawing", "drawn", "illustration", "illustrated",
	"comic", "cartoon", "pixel", "cel", "ink", "pastel", "storybook",
}

// firstPersonConstraint keeps generated scenes reading as the player's
// own viewpoint: the protagonist must never appear in frame.
const firstPersonConstraint = "First-person view of the scene; the protagonist is behind the camera and must not be visible."

// Compile-time checks
var (
	_ interfaces.MediaEnricher = (*imageEnricher)(nil)
	_ interfaces.MediaEnricher = (*voiceEnricher)(nil)
)

// --- Image enricher ---

type imageEnricher struct {
	client interfaces.ImageClient
	quota  interfaces.QuotaGuard
	logger *zap.Logger
}

// NewImageEnricher creates the image branch of scene enrichment. It is
// gated by its own quota class and never lets an error escape: every
// failure becomes a MediaOutcome.
func NewImageEnricher(client interfaces.ImageClient, quota interfaces.QuotaGuard, logger *zap.Logger) interfaces.MediaEnricher {
	return &imageEnricher{
		client: client,
		quota:  quota,
		logger: logger.Named("ImageEnricher"),
	}
}

func (e *imageEnricher) Enrich(ctx context.Context, userID uuid.UUID, prompt string, hints models.EnrichmentHints) models.MediaOutcome {
	if strings.TrimSpace(prompt) == "" {
		return models.MediaFailure("scene carries no image prompt")
	}

	rl := e.quota.CheckAndConsume(ctx, userID, models.RequestClassImage)
	if !rl.Success {
		e.logger.Info("Image generation denied by quota",
			zap.String("userID", userID.String()),
			zap.String("errorKind", rl.ErrorKind),
		)
		return models.MediaFailureRetryAt("image generation quota exceeded", rl.ResetAt)
	}

	fullPrompt := composeImagePrompt(prompt, hints.VisualStyle)
	url, err := e.client.GenerateImage(ctx, fullPrompt)
	if err != nil {
		e.logger.Warn("Image generation failed", zap.String("userID", userID.String()), zap.Error(err))
		return models.MediaFailure("image generation failed: " + err.Error())
	}
	return models.MediaSuccess(url)
}

// composeImagePrompt appends the style suffix and viewpoint constraint.
// Иллюстративные стили дополнительно получают явный запрет фотореализма.
func composeImagePrompt(prompt, visualStyle string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(prompt))

	if visualStyle != "" {
		sb.WriteString(", in the style of ")
		sb.WriteString(visualStyle)
		if isIllustrativeStyle(visualStyle) {
			sb.WriteString(", avoid photorealism")
		}
	}

	sb.WriteString(". ")
	sb.WriteString(firstPersonConstraint)
	return sb.String()
}

func isIllustrativeStyle(style string) bool {
	lowered := strings.ToLower(style)
	for _, kw := range illustrativeKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// --- Voice enricher ---

type voiceEnricher struct {
	client interfaces.SpeechClient
	quota  interfaces.QuotaGuard
	logger *zap.Logger
}

// NewVoiceEnricher creates the audio branch of scene enrichment.
func NewVoiceEnricher(client interfaces.SpeechClient, quota interfaces.QuotaGuard, logger *zap.Logger) interfaces.MediaEnricher {
	return &voiceEnricher{
		client: client,
		quota:  quota,
		logger: logger.Named("VoiceEnricher"),
	}
}

func (e *voiceEnricher) Enrich(ctx context.Context, userID uuid.UUID, prompt string, hints models.EnrichmentHints) models.MediaOutcome {
	if strings.TrimSpace(prompt) == "" {
		return models.MediaFailure("scene carries no narration text")
	}

	rl := e.quota.CheckAndConsume(ctx, userID, models.RequestClassVoice)
	if !rl.Success {
		e.logger.Info("Voice synthesis denied by quota",
			zap.String("userID", userID.String()),
			zap.String("errorKind", rl.ErrorKind),
		)
		return models.MediaFailureRetryAt("voice synthesis quota exceeded", rl.ResetAt)
	}

	audio, err := e.client.SynthesizeSpeech(ctx, prompt, hints.Voice)
	if err != nil {
		e.logger.Warn("Voice synthesis failed", zap.String("userID", userID.String()), zap.Error(err))
		return models.MediaFailure("voice synthesis failed: " + err.Error())
	}
	// Аудио уходит клиенту внутри JSON, поэтому base64.
	return models.MediaSuccess(base64.StdEncoding.EncodeToString(audio))
}
