package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tale-server/internal/models"
)

const (
	// crossFadeDuration is the fixed image cross-fade length.
	crossFadeDuration = 400 * time.Millisecond
	// choiceRevealFallback is the short timer that reveals choices for
	// scenes that carry no audio at all.
	choiceRevealFallback = 150 * time.Millisecond
)

// Machine errors.
var (
	ErrNoChoicesVisible = errors.New("choices are not visible yet")
	ErrChoiceOutOfRange = errors.New("choice index out of range")
	ErrNotPlaying       = errors.New("no scene is being played")
)

// Machine is the playback state machine. It owns the narrative phase and
// composes two sub-machines, image transition and audio lifecycle, plus
// the one-shot choice reveal. All mutations run under one mutex: events
// arrive from UI callbacks, media callbacks and the fallback timer, and
// the timer callback re-enters the machine.
type Machine struct {
	mu sync.Mutex

	phase        Phase
	scene        *models.FinalScene
	lastErr      error
	sceneArrived bool

	hasUserInteracted bool
	choicesRevealed   bool

	fallbackTimer Timer
	fallbackGen   int

	image  *imageTransition
	audio  *audioLifecycle
	driver MediaDriver
	clock  Clock
	logger zerolog.Logger
}

// NewMachine creates a machine in PhaseSelectingScenario.
func NewMachine(driver MediaDriver, clock Clock, logger zerolog.Logger) *Machine {
	return &Machine{
		phase:  PhaseSelectingScenario,
		image:  newImageTransition(driver, crossFadeDuration),
		audio:  newAudioLifecycle(driver),
		driver: driver,
		clock:  clock,
		logger: logger.With().Str("component", "PlaybackMachine").Logger(),
	}
}

// SelectScenario records the player's scenario pick. This is always a
// user gesture, so it also opens the autoplay gate. Any running playback
// is hard-reset first.
func (m *Machine) SelectScenario() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hardResetLocked()
	m.hasUserInteracted = true
	m.sceneArrived = false
	m.setPhaseLocked(PhaseLoadingFirstScene)
}

// SceneArrived feeds the next assembled scene into the machine.
func (m *Machine) SceneArrived(scene *models.FinalScene) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseLoadingFirstScene && m.phase != PhasePlaying {
		m.logger.Warn().Str("phase", m.phase.String()).Msg("Scene dropped: machine is not expecting one")
		return
	}

	// Новая сцена безусловно вытесняет медиа предыдущей.
	m.cancelFallbackLocked()
	m.audio.stop()
	m.driver.HideChoices()

	m.scene = scene
	m.sceneArrived = true
	m.choicesRevealed = false
	m.lastErr = nil
	m.setPhaseLocked(PhasePlaying)

	m.image.onScene(scene.ImageURL)
	m.audio.onScene(scene.AudioData)

	if !m.audio.hasAudio() {
		// Без аудио выбор открывает короткий таймер, а не медиа-событие.
		m.armFallbackLocked()
		return
	}
	m.tryStartAudioLocked()
}

// SceneFailed records a pipeline-level failure (quota, malformed
// response, unexpected) and enters the error phase.
func (m *Machine) SceneFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelFallbackLocked()
	m.audio.stop()
	m.lastErr = err
	m.setPhaseLocked(PhaseError)
}

// ClearError leaves the error phase after an explicit retry: back to
// playing when a scene is already on screen, otherwise back to scenario
// selection.
func (m *Machine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseError {
		return
	}
	m.lastErr = nil
	if m.sceneArrived {
		m.setPhaseLocked(PhasePlaying)
		return
	}
	m.setPhaseLocked(PhaseSelectingScenario)
}

// Restart is the hard reset back to scenario selection: stop audio,
// cancel timers, drop the scene.
func (m *Machine) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hardResetLocked()
	m.sceneArrived = false
	m.setPhaseLocked(PhaseSelectingScenario)
}

// MarkUserInteracted opens the autoplay gate on the first user gesture.
func (m *Machine) MarkUserInteracted() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hasUserInteracted = true
	m.tryStartAudioLocked()
}

// ImageLoaded handles the incoming image's load event.
func (m *Machine) ImageLoaded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.image.onLoaded()
	m.tryStartAudioLocked()
}

// ImageFadeDone handles cross-fade completion.
func (m *Machine) ImageFadeDone() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.image.onFadeDone()
}

// AudioEnded handles the end-of-audio event.
func (m *Machine) AudioEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.audio.onEnded() {
		m.revealChoicesLocked()
	}
}

// AudioError handles a playback error event. Failed playback reveals
// choices just like finished playback: the player is never blocked on a
// broken audio element.
func (m *Machine) AudioError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.audio.onError() {
		m.revealChoicesLocked()
	}
}

// ChooseOption validates and returns the picked choice. Choices can only
// be picked once revealed; picking is a user gesture.
func (m *Machine) ChooseOption(index int) (models.SceneChoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhasePlaying || m.scene == nil {
		return models.SceneChoice{}, ErrNotPlaying
	}
	if !m.choicesRevealed {
		return models.SceneChoice{}, ErrNoChoicesVisible
	}
	if index < 0 || index >= len(m.scene.Choices) {
		return models.SceneChoice{}, ErrChoiceOutOfRange
	}
	m.hasUserInteracted = true
	return m.scene.Choices[index], nil
}

// Phase returns the current narrative phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Scene returns the scene currently on screen, nil outside playback.
func (m *Machine) Scene() *models.FinalScene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene
}

// Err returns the pipeline error observed in the error phase.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ChoicesVisible reports whether the current scene's choices are shown.
func (m *Machine) ChoicesVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.choicesRevealed
}

// --- internal, lock held ---

func (m *Machine) setPhaseLocked(p Phase) {
	if m.phase == p {
		return
	}
	m.logger.Debug().Str("from", m.phase.String()).Str("to", p.String()).Msg("Phase transition")
	m.phase = p
}

// tryStartAudioLocked starts playback once the gates allow. Starting
// playback cancels the fallback timer immediately, so a racing timer can
// never flash choices right before audio begins.
func (m *Machine) tryStartAudioLocked() {
	if m.phase != PhasePlaying {
		return
	}
	started, failed := m.audio.tryStart(m.hasUserInteracted, m.image.ready)
	if started {
		m.cancelFallbackLocked()
		return
	}
	if failed {
		m.logger.Warn().Msg("Audio playback failed to start, revealing choices")
		m.revealChoicesLocked()
	}
}

// revealChoicesLocked shows the choices exactly once per scene.
func (m *Machine) revealChoicesLocked() {
	if m.choicesRevealed || m.scene == nil {
		return
	}
	m.choicesRevealed = true
	m.driver.RevealChoices(m.scene.Choices)
}

// armFallbackLocked schedules the no-audio reveal timer. The generation
// counter makes a stale callback a no-op after any reset.
func (m *Machine) armFallbackLocked() {
	m.fallbackGen++
	gen := m.fallbackGen
	m.fallbackTimer = m.clock.AfterFunc(choiceRevealFallback, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.fallbackGen != gen {
			return
		}
		m.revealChoicesLocked()
	})
}

func (m *Machine) cancelFallbackLocked() {
	m.fallbackGen++
	if m.fallbackTimer != nil {
		m.fallbackTimer.Stop()
		m.fallbackTimer = nil
	}
}

// hardResetLocked stops media and clears per-scene state. Phase is set
// by the caller.
func (m *Machine) hardResetLocked() {
	m.cancelFallbackLocked()
	m.audio.stop()
	m.driver.HideChoices()
	m.image.reset()
	m.scene = nil
	m.choicesRevealed = false
	m.lastErr = nil
}
