package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"tale-server/internal/mocks"
	"tale-server/internal/models"
)

func testValidatedScene() *models.ValidatedScene {
	return &models.ValidatedScene{
		Passage:        "You enter the vault.",
		Choices:        []models.SceneChoice{{Text: "Take the gem"}, {Text: "Leave"}},
		ImagePrompt:    "a glittering vault",
		UpdatedSummary: "The hero entered the vault.",
	}
}

func TestAssemble_ImageFailsVoiceSucceeds(t *testing.T) {
	a := NewSceneAssembler(nil, nil, zap.NewNop())
	scene := testValidatedScene()

	final := a.Assemble(scene,
		models.MediaFailure("image generation failed: boom"),
		models.MediaSuccess("bXAzZGF0YQ=="),
		"prompt")

	assert.Equal(t, scene.Passage, final.Passage)
	assert.Equal(t, scene.Choices, final.Choices)
	assert.Empty(t, final.ImageURL)
	assert.Equal(t, "bXAzZGF0YQ==", final.AudioData)
	assert.Contains(t, final.ImageFailure, "boom")
	assert.Empty(t, final.AudioFailure)
}

func TestAssemble_BothSucceed(t *testing.T) {
	a := NewSceneAssembler(nil, nil, zap.NewNop())

	final := a.Assemble(testValidatedScene(),
		models.MediaSuccess("https://img.example/v.png"),
		models.MediaSuccess("YXVkaW8="),
		"prompt")

	assert.Equal(t, "https://img.example/v.png", final.ImageURL)
	assert.Equal(t, "YXVkaW8=", final.AudioData)
	assert.True(t, final.HasImage())
	assert.True(t, final.HasAudio())
	assert.Empty(t, final.ImageFailure)
	assert.Empty(t, final.AudioFailure)
}

func TestAssemble_Idempotent(t *testing.T) {
	a := NewSceneAssembler(nil, nil, zap.NewNop())
	scene := testValidatedScene()
	img := models.MediaSuccess("url")
	audio := models.MediaFailure("synth down")

	first := a.Assemble(scene, img, audio, "prompt")
	second := a.Assemble(scene, img, audio, "prompt")

	assert.Equal(t, first, second)
}

func TestEnrichAndAssemble_BothBranchesAlwaysRun(t *testing.T) {
	image := new(mocks.MediaEnricher)
	voice := new(mocks.MediaEnricher)
	userID := uuid.New()
	a := NewSceneAssembler(image, voice, zap.NewNop())
	scene := testValidatedScene()
	hints := models.EnrichmentHints{VisualStyle: "sketch", Voice: "onyx"}

	// Отказ ветки изображения не должен помешать ветке озвучки.
	image.On("Enrich", mock.Anything, userID, scene.ImagePrompt, hints).
		Return(models.MediaFailure("quota"))
	voice.On("Enrich", mock.Anything, userID, scene.Passage, hints).
		Return(models.MediaSuccess("YXVkaW8="))

	final := a.EnrichAndAssemble(context.Background(), userID, scene, hints, "prompt")

	assert.Empty(t, final.ImageURL)
	assert.Equal(t, "YXVkaW8=", final.AudioData)
	image.AssertExpectations(t)
	voice.AssertExpectations(t)
}
