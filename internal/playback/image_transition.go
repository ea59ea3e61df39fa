package playback

import "time"

// imageState is the image transition sub-machine state.
type imageState int

const (
	imageIdle imageState = iota
	imageLoading
	imageFading
)

// imageTransition keeps the previous scene image on screen while the
// next one loads, then runs a fixed-duration cross-fade. A scene without
// an image fades the current one out instead of waiting for a load
// event.
type imageTransition struct {
	state        imageState
	currentURL   string
	pendingURL   string
	ready        bool // true once the incoming image can be displayed
	fadeDuration time.Duration
	driver       MediaDriver
}

func newImageTransition(driver MediaDriver, fadeDuration time.Duration) *imageTransition {
	return &imageTransition{
		driver:       driver,
		fadeDuration: fadeDuration,
		ready:        true,
	}
}

// onScene handles a new scene's image (or its absence).
func (t *imageTransition) onScene(url string) {
	if url == "" {
		if t.currentURL != "" {
			t.driver.FadeOutImage(t.fadeDuration)
		}
		t.state = imageIdle
		t.currentURL = ""
		t.pendingURL = ""
		// No image to wait for: audio may start immediately.
		t.ready = true
		return
	}

	t.state = imageLoading
	t.pendingURL = url
	t.ready = false
	t.driver.ShowImage(url)
}

// onLoaded handles the incoming image's load event.
func (t *imageTransition) onLoaded() {
	if t.state != imageLoading {
		return
	}
	t.state = imageFading
	t.ready = true
	t.driver.BeginCrossFade(t.fadeDuration)
}

// onFadeDone promotes the pending image to current.
func (t *imageTransition) onFadeDone() {
	if t.state != imageFading {
		return
	}
	t.state = imageIdle
	t.currentURL = t.pendingURL
	t.pendingURL = ""
}

// reset drops all transition state without touching the driver.
func (t *imageTransition) reset() {
	t.state = imageIdle
	t.currentURL = ""
	t.pendingURL = ""
	t.ready = true
}
