package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// ImageConfig описывает подключение к API генерации изображений.
type ImageConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration
}

var _ interfaces.ImageClient = (*openAIImageClient)(nil)

type openAIImageClient struct {
	client  *openaigo.Client
	model   string
	size    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewImageClient создает клиента генерации изображений.
func NewImageClient(cfg ImageConfig, logger *zap.Logger) interfaces.ImageClient {
	clientConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAIImageClient{
		client:  openaigo.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		size:    cfg.Size,
		timeout: cfg.Timeout,
		logger:  logger.Named("ImageClient"),
	}
}

// GenerateImage рендерит одно изображение и возвращает его URL.
func (c *openAIImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateImage(callCtx, openaigo.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		Size:           c.size,
		N:              1,
		ResponseFormat: openaigo.CreateImageResponseFormatURL,
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Ошибка генерации изображения", zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("%w: пустой ответ image API", models.ErrUpstreamUnavailable)
	}

	c.logger.Debug("Изображение сгенерировано", zap.Duration("duration", duration))
	return resp.Data[0].URL, nil
}
