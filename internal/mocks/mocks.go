package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"tale-server/internal/models"
)

// Mock QuotaRepository
type QuotaRepository struct {
	mock.Mock
}

func (m *QuotaRepository) ConsumeQuota(ctx context.Context, userID uuid.UUID, class models.RequestClass, limit int, now time.Time) (*models.QuotaRecord, bool, error) {
	args := m.Called(ctx, userID, class, limit, now)
	rec, _ := args.Get(0).(*models.QuotaRecord)
	return rec, args.Bool(1), args.Error(2)
}

func (m *QuotaRepository) GetQuota(ctx context.Context, userID uuid.UUID, class models.RequestClass) (*models.QuotaRecord, error) {
	args := m.Called(ctx, userID, class)
	rec, _ := args.Get(0).(*models.QuotaRecord)
	return rec, args.Error(1)
}

// Mock QuotaGuard
type QuotaGuard struct {
	mock.Mock
}

func (m *QuotaGuard) CheckAndConsume(ctx context.Context, userID uuid.UUID, class models.RequestClass) models.RateLimitResult {
	args := m.Called(ctx, userID, class)
	res, _ := args.Get(0).(models.RateLimitResult)
	return res
}

func (m *QuotaGuard) Peek(ctx context.Context, userID uuid.UUID, class models.RequestClass) models.RateLimitResult {
	args := m.Called(ctx, userID, class)
	res, _ := args.Get(0).(models.RateLimitResult)
	return res
}

// Mock SessionRepository
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) IsSessionActive(ctx context.Context, userID uuid.UUID, sessionID string) (bool, error) {
	args := m.Called(ctx, userID, sessionID)
	return args.Bool(0), args.Error(1)
}

// Mock NarrationClient
type NarrationClient struct {
	mock.Mock
}

func (m *NarrationClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string) (string, error) {
	args := m.Called(ctx, userID, systemPrompt, userInput)
	return args.String(0), args.Error(1)
}

// Mock ImageClient
type ImageClient struct {
	mock.Mock
}

func (m *ImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// Mock SpeechClient
type SpeechClient struct {
	mock.Mock
}

func (m *SpeechClient) SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, error) {
	args := m.Called(ctx, text, voice)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// Mock MediaEnricher
type MediaEnricher struct {
	mock.Mock
}

func (m *MediaEnricher) Enrich(ctx context.Context, userID uuid.UUID, prompt string, hints models.EnrichmentHints) models.MediaOutcome {
	args := m.Called(ctx, userID, prompt, hints)
	out, _ := args.Get(0).(models.MediaOutcome)
	return out
}

// Mock ClientUpdatePublisher
type ClientUpdatePublisher struct {
	mock.Mock
}

func (m *ClientUpdatePublisher) PublishSceneGenerated(ctx context.Context, userID uuid.UUID, scene *models.FinalScene) error {
	args := m.Called(ctx, userID, scene)
	return args.Error(0)
}

// Mock GenerationService
type GenerationService struct {
	mock.Mock
}

func (m *GenerationService) GenerateScene(ctx context.Context, req *models.GenerateSceneRequest) (*models.FinalScene, error) {
	args := m.Called(ctx, req)
	scene, _ := args.Get(0).(*models.FinalScene)
	return scene, args.Error(1)
}

// Mock UserRepository
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) EnsureUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
