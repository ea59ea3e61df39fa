package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// SceneAssembler fans enrichment out to both media branches, waits for
// both to settle and merges the outcomes into one FinalScene. A failed
// branch is logged, never propagated: text delivery does not depend on
// media.
type SceneAssembler struct {
	image  interfaces.MediaEnricher
	voice  interfaces.MediaEnricher
	logger *zap.Logger
}

// NewSceneAssembler creates the assembler over the two enrichers.
func NewSceneAssembler(image, voice interfaces.MediaEnricher, logger *zap.Logger) *SceneAssembler {
	return &SceneAssembler{
		image:  image,
		voice:  voice,
		logger: logger.Named("SceneAssembler"),
	}
}

// EnrichAndAssemble runs both enrichers concurrently and assembles the
// result. The join waits for both branches regardless of outcome; a
// plain WaitGroup (not an error group) so neither branch can cancel the
// other.
func (a *SceneAssembler) EnrichAndAssemble(ctx context.Context, userID uuid.UUID, scene *models.ValidatedScene, hints models.EnrichmentHints, promptUsed string) *models.FinalScene {
	var (
		wg           sync.WaitGroup
		imageOutcome models.MediaOutcome
		audioOutcome models.MediaOutcome
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		imageOutcome = a.image.Enrich(ctx, userID, scene.ImagePrompt, hints)
	}()
	go func() {
		defer wg.Done()
		audioOutcome = a.voice.Enrich(ctx, userID, scene.Passage, hints)
	}()
	wg.Wait()

	return a.Assemble(scene, imageOutcome, audioOutcome, promptUsed)
}

// Assemble merges the validated scene with the two settled outcomes.
// Deterministic: identical inputs always produce an identical scene, and
// media fields come only from Success outcomes - never from any earlier
// request.
func (a *SceneAssembler) Assemble(scene *models.ValidatedScene, imageOutcome, audioOutcome models.MediaOutcome, promptUsed string) *models.FinalScene {
	final := &models.FinalScene{
		Passage:        scene.Passage,
		Choices:        scene.Choices,
		UpdatedSummary: scene.UpdatedSummary,
		ImagePrompt:    scene.ImagePrompt,
		PromptUsed:     promptUsed,
	}

	if imageOutcome.Success {
		final.ImageURL = imageOutcome.Data
	} else {
		final.ImageFailure = imageOutcome.Reason
		a.logger.Info("Scene assembled without image", zap.String("reason", imageOutcome.Reason))
	}

	if audioOutcome.Success {
		final.AudioData = audioOutcome.Data
	} else {
		final.AudioFailure = audioOutcome.Reason
		a.logger.Info("Scene assembled without audio", zap.String("reason", audioOutcome.Reason))
	}

	return final
}
