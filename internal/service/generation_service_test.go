package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tale-server/internal/mocks"
	"tale-server/internal/models"
	"tale-server/internal/prompt"
)

const validNarration = `{
	"passage": "The door gives way.",
	"choices": [{"text": "Step through"}],
	"image_prompt": "a broken door in torchlight",
	"updated_summary": "The hero broke the door."
}`

type pipelineFixture struct {
	textQuota *mocks.QuotaGuard
	narrator  *mocks.NarrationClient
	image     *mocks.MediaEnricher
	voice     *mocks.MediaEnricher
	publisher *mocks.ClientUpdatePublisher
	svc       *generationServiceImpl
	userID    uuid.UUID
	ctx       context.Context
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		textQuota: new(mocks.QuotaGuard),
		narrator:  new(mocks.NarrationClient),
		image:     new(mocks.MediaEnricher),
		voice:     new(mocks.MediaEnricher),
		publisher: new(mocks.ClientUpdatePublisher),
		userID:    uuid.New(),
	}
	assembler := NewSceneAssembler(f.image, f.voice, zap.NewNop())
	svc := NewGenerationService(f.textQuota, prompt.NewBuilder(3000), f.narrator, assembler, f.publisher, zap.NewNop())
	f.svc = svc.(*generationServiceImpl)
	f.ctx = models.WithUserID(context.Background(), f.userID)
	return f
}

func (f *pipelineFixture) allowTextQuota() {
	f.textQuota.On("CheckAndConsume", mock.Anything, f.userID, models.RequestClassText).
		Return(models.RateLimitResult{Success: true, Limit: 60, Remaining: 59})
}

func TestGenerateScene_MissingUserIsAuthError(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.svc.GenerateScene(context.Background(), &models.GenerateSceneRequest{})

	assert.ErrorIs(t, err, models.ErrAuthenticationRequired)
	f.textQuota.AssertNotCalled(t, "CheckAndConsume", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateScene_RateLimitedBeforeNarration(t *testing.T) {
	f := newPipelineFixture(t)
	resetAt := time.Now().UTC().Add(3 * time.Hour)
	f.textQuota.On("CheckAndConsume", mock.Anything, f.userID, models.RequestClassText).
		Return(models.RateLimitResult{Limit: 60, ResetAt: resetAt, ErrorKind: models.QuotaErrorRateLimited})

	_, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{})

	var rl *models.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, models.RequestClassText, rl.RequestClass)
	assert.Equal(t, resetAt, rl.ResetAt)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
	f.narrator.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateScene_NarrationFailureIsFatal(t *testing.T) {
	f := newPipelineFixture(t)
	f.allowTextQuota()
	f.narrator.On("GenerateText", mock.Anything, f.userID.String(), mock.Anything, "").
		Return("", models.ErrUpstreamUnavailable)

	_, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{})

	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	f.image.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.voice.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateScene_MalformedResponseSkipsEnrichers(t *testing.T) {
	f := newPipelineFixture(t)
	f.allowTextQuota()
	f.narrator.On("GenerateText", mock.Anything, f.userID.String(), mock.Anything, "").
		Return("I refuse to answer in JSON.", nil)

	_, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{})

	var malformed *models.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, models.MalformedKindParse, malformed.Kind)
	f.image.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.voice.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateScene_SchemaErrorSkipsEnrichers(t *testing.T) {
	f := newPipelineFixture(t)
	f.allowTextQuota()
	f.narrator.On("GenerateText", mock.Anything, f.userID.String(), mock.Anything, "").
		Return(`{"passage": "p", "updated_summary": "s"}`, nil)

	_, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{})

	var malformed *models.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, models.MalformedKindSchema, malformed.Kind)
	f.image.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateScene_SuccessAssemblesAndPublishes(t *testing.T) {
	f := newPipelineFixture(t)
	f.allowTextQuota()
	f.narrator.On("GenerateText", mock.Anything, f.userID.String(), mock.Anything, "").
		Return(validNarration, nil)
	f.image.On("Enrich", mock.Anything, f.userID, "a broken door in torchlight", mock.Anything).
		Return(models.MediaSuccess("https://img.example/door.png"))
	f.voice.On("Enrich", mock.Anything, f.userID, "The door gives way.", mock.Anything).
		Return(models.MediaSuccess("YXVkaW8="))
	f.publisher.On("PublishSceneGenerated", mock.Anything, f.userID, mock.Anything).Return(nil)

	final, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{Voice: "nova", VisualStyle: "ink sketch"})
	require.NoError(t, err)

	assert.Equal(t, "The door gives way.", final.Passage)
	assert.Equal(t, "https://img.example/door.png", final.ImageURL)
	assert.Equal(t, "YXVkaW8=", final.AudioData)
	assert.NotEmpty(t, final.PromptUsed)
	f.publisher.AssertExpectations(t)

	// Переданные хинты собираются из стиля запроса.
	hints := f.image.Calls[0].Arguments.Get(3).(models.EnrichmentHints)
	assert.Equal(t, "ink sketch", hints.VisualStyle)
	assert.Equal(t, "nova", hints.Voice)
}

func TestGenerateScene_MediaFailureIsNotTopLevel(t *testing.T) {
	f := newPipelineFixture(t)
	f.allowTextQuota()
	f.narrator.On("GenerateText", mock.Anything, f.userID.String(), mock.Anything, "").
		Return(validNarration, nil)
	f.image.On("Enrich", mock.Anything, f.userID, mock.Anything, mock.Anything).
		Return(models.MediaFailure("image generation failed"))
	f.voice.On("Enrich", mock.Anything, f.userID, mock.Anything, mock.Anything).
		Return(models.MediaFailure("voice synthesis quota exceeded"))
	f.publisher.On("PublishSceneGenerated", mock.Anything, f.userID, mock.Anything).Return(nil)

	final, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{})
	require.NoError(t, err)

	assert.Empty(t, final.ImageURL)
	assert.Empty(t, final.AudioData)
	assert.NotEmpty(t, final.ImageFailure)
	assert.NotEmpty(t, final.AudioFailure)
}

func TestGenerateScene_PublisherFailureIsTolerated(t *testing.T) {
	f := newPipelineFixture(t)
	f.allowTextQuota()
	f.narrator.On("GenerateText", mock.Anything, f.userID.String(), mock.Anything, "").
		Return(validNarration, nil)
	f.image.On("Enrich", mock.Anything, f.userID, mock.Anything, mock.Anything).
		Return(models.MediaSuccess("url"))
	f.voice.On("Enrich", mock.Anything, f.userID, mock.Anything, mock.Anything).
		Return(models.MediaSuccess("YXVkaW8="))
	f.publisher.On("PublishSceneGenerated", mock.Anything, f.userID, mock.Anything).
		Return(errors.New("broker gone"))

	final, err := f.svc.GenerateScene(f.ctx, &models.GenerateSceneRequest{})

	require.NoError(t, err)
	assert.NotNil(t, final)
}

func TestMergeStyleOverrides(t *testing.T) {
	style := models.StoryStyle{Genre: "fantasy", Tone: "grim", VisualStyle: "oil painting"}
	mergeStyleOverrides(&style, &models.GenerateSceneRequest{Tone: "hopeful"})

	assert.Equal(t, "fantasy", style.Genre)
	assert.Equal(t, "hopeful", style.Tone)
	assert.Equal(t, "oil painting", style.VisualStyle)
}
