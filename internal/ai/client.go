package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tale_server_ai_requests_total",
			Help: "Total number of requests to the narration AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tale_server_ai_request_duration_seconds",
			Help:    "Histogram of narration AI request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tale_server_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20),
		},
		[]string{"model"},
	)
)

// Params - параметры сэмплирования нарратора, фиксируются при создании клиента.
type Params struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Config описывает подключение к текстовому AI.
type Config struct {
	Provider string // openai | ollama
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Params   Params
}

// NewNarrationClient создает клиента выбранного провайдера.
func NewNarrationClient(cfg Config, logger *zap.Logger) (interfaces.NarrationClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return newOpenAIClient(cfg, logger), nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("неизвестный AI провайдер: %q", cfg.Provider)
	}
}

// --- OpenAI-совместимый клиент (OpenAI, OpenRouter и т.п.) ---

type openAIClient struct {
	client  *openaigo.Client
	model   string
	timeout time.Duration
	params  Params
	logger  *zap.Logger
}

func newOpenAIClient(cfg Config, logger *zap.Logger) *openAIClient {
	clientConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAIClient{
		client:  openaigo.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		params:  cfg.Params,
		logger:  logger.Named("OpenAIClient"),
	}
}

// GenerateText генерирует текст на основе системного промта и ввода пользователя.
// Ошибки транспорта/провайдера заворачиваются в ErrUpstreamUnavailable и
// не ретраятся внутри клиента.
func (c *openAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: системный промт пуст", models.ErrUpstreamUnavailable)
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	c.logger.Debug("Отправка запроса к AI",
		zap.String("model", c.model),
		zap.Int("system_prompt_bytes", len(systemPrompt)),
		zap.String("userID", userID),
	)

	resp, err := c.client.CreateChatCompletion(callCtx, openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
		TopP:        c.params.TopP,
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Ошибка от AI API", zap.Duration("duration", duration), zap.String("userID", userID), zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("AI API вернул пустой ответ", zap.Duration("duration", duration), zap.String("userID", userID))
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("%w: получен пустой ответ", models.ErrUpstreamUnavailable)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		aiTotalTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(resp.Usage.TotalTokens))
	}

	generatedText := resp.Choices[0].Message.Content
	c.logger.Debug("Ответ от AI API получен",
		zap.Duration("duration", duration),
		zap.Int("length", len(generatedText)),
		zap.String("userID", userID),
	)
	return generatedText, nil
}

// --- Ollama клиент для локальных моделей ---

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	params  Params
	logger  *zap.Logger
}

func newOllamaClient(cfg Config, logger *zap.Logger) (*ollamaClient, error) {
	// Ollama не использует суффикс /v1 OpenAI-совместимых endpoint'ов.
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}

	return &ollamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		params:  cfg.Params,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: системный промт пуст", models.ErrUpstreamUnavailable)
	}

	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": float64(c.params.Temperature),
			"num_predict": c.params.MaxTokens,
			"top_p":       float64(c.params.TopP),
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	startTime := time.Now()
	err := c.client.Chat(callCtx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Ошибка от Ollama", zap.Duration("duration", duration), zap.String("userID", userID), zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if sb.Len() == 0 {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("%w: получен пустой ответ", models.ErrUpstreamUnavailable)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())
	return sb.String(), nil
}
