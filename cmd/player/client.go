package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tale-server/internal/messaging"
	"tale-server/internal/models"
	"tale-server/internal/utils"
)

// apiClient talks to the scene generation endpoint.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

func newAPIClient(baseURL, token string, logger zerolog.Logger) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		token:   token,
		// Генерация сцены с медиа занимает десятки секунд.
		http:   &http.Client{Timeout: 3 * time.Minute},
		logger: logger.With().Str("component", "APIClient").Logger(),
	}
}

// GenerateScene requests the next beat. The response envelope always
// carries exactly one of scene, error or rate limit error, so HTTP
// status codes are informative only.
func (c *apiClient) GenerateScene(ctx context.Context, req *models.GenerateSceneRequest) (*models.GenerateSceneResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scene request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/story/scene", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build scene request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("scene request failed: %w", err)
	}
	defer resp.Body.Close()

	var envelope models.GenerateSceneResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode scene response (status %d): %w", resp.StatusCode, err)
	}
	return &envelope, nil
}

// listenUpdates subscribes to the server's WebSocket update feed and
// logs scene-generated events. The feed is informational for a single
// terminal player; other sessions of the same user see new beats appear.
func listenUpdates(ctx context.Context, wsURL, token string, logger zerolog.Logger) {
	log := logger.With().Str("component", "UpdateListener").Logger()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?token="+token, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket feed unavailable")
		return
	}
	defer conn.Close()
	log.Info().Msg("Subscribed to scene updates")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("Update feed closed")
			return
		}
		var payload messaging.ClientUpdatePayload
		if err := utils.DecodeStrict(raw, &payload); err != nil {
			log.Warn().Err(err).Msg("Unrecognized update payload")
			continue
		}
		if payload.EventType == messaging.EventTypeSceneGenerated {
			log.Info().Bool("hasAudio", payload.HasAudio).Int("choices", payload.Choices).Msg("Scene generated elsewhere")
		}
	}
}
