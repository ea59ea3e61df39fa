package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
	"tale-server/internal/prompt"
	"tale-server/internal/schemas"
)

var pipelineRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tale_server_pipeline_requests_total",
		Help: "Total scene generation pipeline runs by outcome.",
	},
	[]string{"outcome"},
)

// Compile-time check to ensure generationServiceImpl implements GenerationService
var _ interfaces.GenerationService = (*generationServiceImpl)(nil)

type generationServiceImpl struct {
	textQuota interfaces.QuotaGuard
	builder   *prompt.Builder
	narrator  interfaces.NarrationClient
	assembler *SceneAssembler
	publisher interfaces.ClientUpdatePublisher
	logger    *zap.Logger
}

// NewGenerationService creates the scene generation pipeline. publisher
// may be nil when no broker is configured; publishing is best-effort
// either way.
func NewGenerationService(
	textQuota interfaces.QuotaGuard,
	builder *prompt.Builder,
	narrator interfaces.NarrationClient,
	assembler *SceneAssembler,
	publisher interfaces.ClientUpdatePublisher,
	logger *zap.Logger,
) interfaces.GenerationService {
	return &generationServiceImpl{
		textQuota: textQuota,
		builder:   builder,
		narrator:  narrator,
		assembler: assembler,
		publisher: publisher,
		logger:    logger.Named("GenerationService"),
	}
}

// GenerateScene runs the full pipeline: session check, text quota,
// prompt build, narration, validation, parallel media enrichment and
// assembly. Narration failure is fatal to the request; media failure
// never is.
func (s *generationServiceImpl) GenerateScene(ctx context.Context, req *models.GenerateSceneRequest) (*models.FinalScene, error) {
	userID, ok := models.GetUserIDFromContext(ctx)
	if !ok {
		pipelineRequestsTotal.With(prometheus.Labels{"outcome": "auth_required"}).Inc()
		return nil, models.ErrAuthenticationRequired
	}
	log := s.logger.With(zap.String("userID", userID.String()))

	narrativeCtx := req.StoryContext
	mergeStyleOverrides(&narrativeCtx.Style, req)

	rl := s.textQuota.CheckAndConsume(ctx, userID, models.RequestClassText)
	if !rl.Success {
		pipelineRequestsTotal.With(prometheus.Labels{"outcome": "rate_limited"}).Inc()
		return nil, &models.RateLimitError{
			RequestClass: models.RequestClassText,
			Limit:        rl.Limit,
			ResetAt:      rl.ResetAt,
		}
	}

	promptText := s.builder.Build(narrativeCtx, req.InitialScenarioText)

	raw, err := s.narrator.GenerateText(ctx, userID.String(), promptText, "")
	if err != nil {
		log.Warn("Narration generation failed", zap.Error(err))
		pipelineRequestsTotal.With(prometheus.Labels{"outcome": "upstream_error"}).Inc()
		return nil, err
	}

	scene, err := schemas.ParseSceneResponse(raw)
	if err != nil {
		// Невалидный ответ не ретраим: отдаем различимую ошибку, чтобы
		// клиент мог явно повторить тот же запрос.
		var malformed *models.MalformedResponseError
		if errors.As(err, &malformed) {
			log.Warn("Narration response rejected by validator",
				zap.String("kind", malformed.Kind),
				zap.String("detail", malformed.Detail),
			)
		}
		pipelineRequestsTotal.With(prometheus.Labels{"outcome": "malformed"}).Inc()
		return nil, err
	}

	hints := models.EnrichmentHints{
		VisualStyle: narrativeCtx.Style.VisualStyle,
		Voice:       req.Voice,
	}
	final := s.assembler.EnrichAndAssemble(ctx, userID, scene, hints, promptText)

	if s.publisher != nil {
		if err := s.publisher.PublishSceneGenerated(ctx, userID, final); err != nil {
			// Доставка уведомления не является частью контракта ответа.
			log.Warn("Failed to publish scene-generated event", zap.Error(err))
		}
	}

	pipelineRequestsTotal.With(prometheus.Labels{"outcome": "success"}).Inc()
	log.Info("Scene generated",
		zap.Int("choices", len(final.Choices)),
		zap.Bool("has_image", final.HasImage()),
		zap.Bool("has_audio", final.HasAudio()),
	)
	return final, nil
}

// mergeStyleOverrides lets the top-level request fields override the
// persisted story style, keeping older clients working.
func mergeStyleOverrides(style *models.StoryStyle, req *models.GenerateSceneRequest) {
	if req.Genre != "" {
		style.Genre = req.Genre
	}
	if req.Tone != "" {
		style.Tone = req.Tone
	}
	if req.VisualStyle != "" {
		style.VisualStyle = req.VisualStyle
	}
}
