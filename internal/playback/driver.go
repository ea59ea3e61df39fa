package playback

import (
	"time"

	"tale-server/internal/models"
)

// MediaDriver is the rendering side the machine drives. Implementations
// own the actual image and audio elements; the machine only sequences
// them. Methods are called with the machine lock held and must not call
// back into the machine synchronously.
type MediaDriver interface {
	// ShowImage begins loading the next scene image. The previous image
	// stays on screen until the cross-fade completes.
	ShowImage(url string)
	// BeginCrossFade starts the fixed-duration fade from the previous
	// image to the freshly loaded one.
	BeginCrossFade(d time.Duration)
	// FadeOutImage fades the current image away for scenes that carry
	// no image of their own.
	FadeOutImage(d time.Duration)

	// PlayAudio starts playback of base64-encoded audio. An error means
	// playback could not start at all (autoplay rejection, bad data).
	PlayAudio(data string) error
	// StopAudio unconditionally stops any in-flight audio.
	StopAudio()

	// RevealChoices makes the scene's choices visible.
	RevealChoices(choices []models.SceneChoice)
	// HideChoices hides them again for the next scene.
	HideChoices()
}
