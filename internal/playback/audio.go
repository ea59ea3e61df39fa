package playback

// audioState is the audio lifecycle sub-machine state.
type audioState int

const (
	// audioNone: the scene carries no audio.
	audioNone audioState = iota
	// audioPending: audio exists but has not started (waiting for the
	// interaction gate and/or the image).
	audioPending
	// audioPlaying: playback started.
	audioPlaying
	// audioSettled: playback finished or failed.
	audioSettled
)

// audioLifecycle gates autoplay on the first user gesture and on image
// readiness, and folds ended and error into one settled flag.
type audioLifecycle struct {
	state  audioState
	data   string
	driver MediaDriver
}

func newAudioLifecycle(driver MediaDriver) *audioLifecycle {
	return &audioLifecycle{driver: driver}
}

// onScene handles a new scene's audio (or its absence).
func (a *audioLifecycle) onScene(data string) {
	a.data = data
	if data == "" {
		a.state = audioNone
		return
	}
	a.state = audioPending
}

// tryStart starts playback if the gates allow it. Returns true when
// playback actually started on this call.
func (a *audioLifecycle) tryStart(hasUserInteracted, imageReady bool) (started bool, failed bool) {
	if a.state != audioPending || !hasUserInteracted || !imageReady {
		return false, false
	}
	if err := a.driver.PlayAudio(a.data); err != nil {
		// Autoplay rejection or undecodable data counts as failed
		// playback: choices must not stay hidden forever.
		a.state = audioSettled
		return false, true
	}
	a.state = audioPlaying
	return true, false
}

// onEnded handles the end-of-audio event.
func (a *audioLifecycle) onEnded() bool {
	if a.state != audioPlaying {
		return false
	}
	a.state = audioSettled
	return true
}

// onError handles a playback error event.
func (a *audioLifecycle) onError() bool {
	if a.state != audioPlaying && a.state != audioPending {
		return false
	}
	a.state = audioSettled
	return true
}

// stop kills any in-flight playback as part of a hard reset.
func (a *audioLifecycle) stop() {
	if a.state == audioPlaying {
		a.driver.StopAudio()
	}
	a.state = audioNone
	a.data = ""
}

func (a *audioLifecycle) hasAudio() bool { return a.state != audioNone }

func (a *audioLifecycle) settled() bool { return a.state == audioSettled }
