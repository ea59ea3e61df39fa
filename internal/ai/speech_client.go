package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// SpeechConfig описывает подключение к API синтеза речи.
type SpeechConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	DefaultVoice string
	Timeout      time.Duration
}

var _ interfaces.SpeechClient = (*openAISpeechClient)(nil)

type openAISpeechClient struct {
	client       *openaigo.Client
	model        string
	defaultVoice string
	timeout      time.Duration
	logger       *zap.Logger
}

// NewSpeechClient создает клиента синтеза речи.
func NewSpeechClient(cfg SpeechConfig, logger *zap.Logger) interfaces.SpeechClient {
	clientConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAISpeechClient{
		client:       openaigo.NewClientWithConfig(clientConfig),
		model:        cfg.Model,
		defaultVoice: cfg.DefaultVoice,
		timeout:      cfg.Timeout,
		logger:       logger.Named("SpeechClient"),
	}
}

// SynthesizeSpeech озвучивает текст и возвращает аудио (mp3) как байты.
func (c *openAISpeechClient) SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, error) {
	if voice == "" {
		voice = c.defaultVoice
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateSpeech(callCtx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(c.model),
		Input:          text,
		Voice:          openaigo.SpeechVoice(voice),
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Ошибка синтеза речи", zap.Duration("duration", duration), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение аудио потока: %v", models.ErrUpstreamUnavailable, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: пустой ответ speech API", models.ErrUpstreamUnavailable)
	}

	c.logger.Debug("Аудио синтезировано", zap.Duration("duration", duration), zap.Int("size_bytes", len(audio)))
	return audio, nil
}
