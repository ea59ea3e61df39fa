package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// StoryHandler обрабатывает HTTP запросы генерации сцен.
type StoryHandler struct {
	generation interfaces.GenerationService
	quota      interfaces.QuotaGuard
	logger     *zap.Logger
}

// NewStoryHandler создает новый StoryHandler.
func NewStoryHandler(generation interfaces.GenerationService, quota interfaces.QuotaGuard, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		generation: generation,
		quota:      quota,
		logger:     logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *StoryHandler) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", auth)
	{
		api.POST("/story/scene", h.generateScene)
		api.GET("/quota", h.checkQuota)
	}
}

// generateScene запускает пайплайн генерации следующей сцены.
// Ответ всегда несет ровно один из трех результатов: сцену,
// структурированный отказ по лимиту или текст ошибки.
func (h *StoryHandler) generateScene(c *gin.Context) {
	var req models.GenerateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind scene request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.GenerateSceneResponse{Error: "invalid request body"})
		return
	}

	scene, err := h.generation.GenerateScene(c.Request.Context(), &req)
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.GenerateSceneResponse{
		Scene:      scene,
		PromptUsed: scene.PromptUsed,
	})
}

// respondPipelineError отображает ошибки пайплайна в HTTP статусы и
// единый конверт ответа.
func (h *StoryHandler) respondPipelineError(c *gin.Context, err error) {
	var rateLimited *models.RateLimitError
	var malformed *models.MalformedResponseError

	switch {
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, models.GenerateSceneResponse{
			RateLimitError: &models.RateLimitErrorDTO{
				Message:      rateLimited.Error(),
				ResetAt:      rateLimited.ResetAt.UnixMilli(),
				RequestClass: string(rateLimited.RequestClass),
			},
		})

	case errors.As(err, &malformed):
		// Клиент может повторить тот же запрос: ошибка различима по тексту.
		c.JSON(http.StatusBadGateway, models.GenerateSceneResponse{
			Error: malformed.Error(),
		})

	case errors.Is(err, models.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, models.GenerateSceneResponse{
			Error: "authentication required",
		})

	case errors.Is(err, models.ErrUpstreamUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.GenerateSceneResponse{
			Error: "generation service is temporarily unavailable, please retry",
		})

	default:
		h.logger.Error("Unexpected pipeline error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.GenerateSceneResponse{
			Error: "internal server error",
		})
	}
}

// checkQuota возвращает текущее состояние лимита без его расходования.
func (h *StoryHandler) checkQuota(c *gin.Context) {
	userID, ok := models.GetUserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	class := models.RequestClass(c.DefaultQuery("class", string(models.RequestClassText)))
	switch class {
	case models.RequestClassText, models.RequestClassImage, models.RequestClassVoice:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown request class"})
		return
	}

	res := h.quota.Peek(c.Request.Context(), userID, class)
	dto := models.QuotaCheckDTO{
		Success:   res.Success,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt.UnixMilli(),
		ErrorKind: res.ErrorKind,
	}
	if res.ErrorKind == models.QuotaErrorRateLimited {
		dto.ErrorMessage = "daily request limit exceeded"
	}
	c.JSON(http.StatusOK, dto)
}
