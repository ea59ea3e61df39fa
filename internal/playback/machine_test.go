package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tale-server/internal/models"
)

// --- Test doubles ---

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	fn    func()
	fired bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired {
		return false
	}
	for i, pending := range t.clock.timers {
		if pending == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range c.timers {
		if !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// fakeDriver records every call the machine makes.
type fakeDriver struct {
	mu          sync.Mutex
	shownImages []string
	crossFades  int
	fadeOuts    int
	playedAudio []string
	playErr     error
	stops       int
	reveals     [][]models.SceneChoice
	hides       int
}

func (d *fakeDriver) ShowImage(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shownImages = append(d.shownImages, url)
}

func (d *fakeDriver) BeginCrossFade(time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.crossFades++
}

func (d *fakeDriver) FadeOutImage(time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fadeOuts++
}

func (d *fakeDriver) PlayAudio(data string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playErr != nil {
		return d.playErr
	}
	d.playedAudio = append(d.playedAudio, data)
	return nil
}

func (d *fakeDriver) StopAudio() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

func (d *fakeDriver) RevealChoices(choices []models.SceneChoice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reveals = append(d.reveals, choices)
}

func (d *fakeDriver) HideChoices() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hides++
}

func (d *fakeDriver) revealCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reveals)
}

func (d *fakeDriver) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.playedAudio)
}

func newTestMachine() (*Machine, *fakeDriver, *fakeClock) {
	driver := &fakeDriver{}
	clock := newFakeClock()
	m := NewMachine(driver, clock, zerolog.Nop())
	return m, driver, clock
}

func sceneWith(image, audio string) *models.FinalScene {
	return &models.FinalScene{
		Passage:   "You stand at the crossroads.",
		Choices:   []models.SceneChoice{{Text: "Go left"}, {Text: "Go right"}},
		ImageURL:  image,
		AudioData: audio,
	}
}

// --- Phase flow ---

func TestMachine_PhaseFlow(t *testing.T) {
	m, _, _ := newTestMachine()
	assert.Equal(t, PhaseSelectingScenario, m.Phase())

	m.SelectScenario()
	assert.Equal(t, PhaseLoadingFirstScene, m.Phase())

	m.SceneArrived(sceneWith("", ""))
	assert.Equal(t, PhasePlaying, m.Phase())

	m.SceneFailed(assert.AnError)
	assert.Equal(t, PhaseError, m.Phase())
	assert.Equal(t, assert.AnError, m.Err())

	m.ClearError()
	assert.Equal(t, PhasePlaying, m.Phase())
	assert.NoError(t, m.Err())

	m.Restart()
	assert.Equal(t, PhaseSelectingScenario, m.Phase())
}

func TestMachine_ErrorBeforeFirstSceneReturnsToSelection(t *testing.T) {
	m, _, _ := newTestMachine()

	m.SelectScenario()
	m.SceneFailed(assert.AnError)
	m.ClearError()

	assert.Equal(t, PhaseSelectingScenario, m.Phase())
}

func TestMachine_SceneDroppedOutsidePlayback(t *testing.T) {
	m, driver, _ := newTestMachine()

	m.SceneArrived(sceneWith("", ""))

	assert.Equal(t, PhaseSelectingScenario, m.Phase())
	assert.Nil(t, m.Scene())
	assert.Zero(t, driver.revealCount())
}

// --- Choice reveal ---

func TestMachine_NoMediaSceneRevealsViaFallbackTimer(t *testing.T) {
	m, driver, clock := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", ""))

	assert.False(t, m.ChoicesVisible())

	clock.Advance(100 * time.Millisecond)
	assert.False(t, m.ChoicesVisible())

	clock.Advance(100 * time.Millisecond)
	assert.True(t, m.ChoicesVisible())
	assert.Equal(t, 1, driver.revealCount())
}

func TestMachine_NoMediaRevealWithinFallbackWindowRealClock(t *testing.T) {
	driver := &fakeDriver{}
	m := NewMachine(driver, NewRealClock(), zerolog.Nop())
	m.SelectScenario()
	m.SceneArrived(sceneWith("", ""))

	require.Eventually(t, m.ChoicesVisible, 200*time.Millisecond, 5*time.Millisecond)
}

func TestMachine_AudioEndedRevealsExactlyOnce(t *testing.T) {
	m, driver, clock := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", "YXVkaW8="))

	// Аудио стартовало сразу: жест уже был, изображения нет.
	assert.Equal(t, 1, driver.playCount())
	assert.False(t, m.ChoicesVisible())

	m.AudioEnded()
	assert.True(t, m.ChoicesVisible())
	assert.Equal(t, 1, driver.revealCount())

	// Никакой таймер не должен открыть выбор второй раз.
	clock.Advance(time.Second)
	m.AudioEnded()
	assert.Equal(t, 1, driver.revealCount())
}

func TestMachine_AudioErrorRevealsChoices(t *testing.T) {
	m, driver, _ := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", "YXVkaW8="))

	m.AudioError()

	assert.True(t, m.ChoicesVisible())
	assert.Equal(t, 1, driver.revealCount())
}

func TestMachine_PlaybackStartFailureRevealsChoices(t *testing.T) {
	m, driver, clock := newTestMachine()
	driver.playErr = assert.AnError
	m.SelectScenario()
	m.SceneArrived(sceneWith("", "broken"))

	assert.True(t, m.ChoicesVisible())
	clock.Advance(time.Second)
	assert.Equal(t, 1, driver.revealCount())
}

// --- Autoplay gating ---

func TestMachine_AudioGatedOnUserInteraction(t *testing.T) {
	m, driver, _ := newTestMachine()

	// Сцена пришла без предшествующего жеста (восстановление сессии).
	m.mu.Lock()
	m.phase = PhaseLoadingFirstScene
	m.mu.Unlock()
	m.SceneArrived(sceneWith("", "YXVkaW8="))

	assert.Zero(t, driver.playCount())

	m.MarkUserInteracted()
	assert.Equal(t, 1, driver.playCount())
}

func TestMachine_AudioWaitsForImageLoad(t *testing.T) {
	m, driver, _ := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("https://img.example/1.png", "YXVkaW8="))

	assert.Zero(t, driver.playCount())

	m.ImageLoaded()
	assert.Equal(t, 1, driver.playCount())
}

// --- Image transition ---

func TestMachine_ImageCrossFadeSequence(t *testing.T) {
	m, driver, _ := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("https://img.example/1.png", ""))

	assert.Equal(t, []string{"https://img.example/1.png"}, driver.shownImages)
	assert.Zero(t, driver.crossFades)

	m.ImageLoaded()
	assert.Equal(t, 1, driver.crossFades)

	m.ImageFadeDone()
	assert.Equal(t, "https://img.example/1.png", m.image.currentURL)
}

func TestMachine_NoImageSceneFadesOutPrevious(t *testing.T) {
	m, driver, _ := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("https://img.example/1.png", ""))
	m.ImageLoaded()
	m.ImageFadeDone()

	m.SceneArrived(sceneWith("", ""))

	assert.Equal(t, 1, driver.fadeOuts)
}

func TestMachine_FirstSceneWithoutImageDoesNotFade(t *testing.T) {
	m, driver, _ := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", ""))

	assert.Zero(t, driver.fadeOuts)
	assert.Empty(t, driver.shownImages)
}

// --- Hard reset ---

func TestMachine_RestartStopsAudioAndCancelsTimers(t *testing.T) {
	m, driver, clock := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", "YXVkaW8="))
	require.Equal(t, 1, driver.playCount())

	m.Restart()

	assert.Equal(t, PhaseSelectingScenario, m.Phase())
	assert.GreaterOrEqual(t, driver.stops, 1)
	assert.Nil(t, m.Scene())

	clock.Advance(time.Second)
	assert.Zero(t, driver.revealCount())
}

func TestMachine_NewSceneCancelsPendingFallback(t *testing.T) {
	m, driver, clock := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", ""))

	// Следующая сцена пришла до истечения таймера первой.
	clock.Advance(50 * time.Millisecond)
	m.SceneArrived(sceneWith("", "YXVkaW8="))

	clock.Advance(time.Second)
	// Старый таймер не должен открыть выбор новой сцены.
	assert.Zero(t, driver.revealCount())
	assert.False(t, m.ChoicesVisible())
}

// --- Choices ---

func TestMachine_ChooseOption(t *testing.T) {
	m, _, clock := newTestMachine()
	m.SelectScenario()
	m.SceneArrived(sceneWith("", ""))

	_, err := m.ChooseOption(0)
	assert.ErrorIs(t, err, ErrNoChoicesVisible)

	clock.Advance(choiceRevealFallback)

	_, err = m.ChooseOption(5)
	assert.ErrorIs(t, err, ErrChoiceOutOfRange)

	choice, err := m.ChooseOption(1)
	require.NoError(t, err)
	assert.Equal(t, "Go right", choice.Text)
}

func TestMachine_ChooseOptionOutsidePlayback(t *testing.T) {
	m, _, _ := newTestMachine()

	_, err := m.ChooseOption(0)
	assert.ErrorIs(t, err, ErrNotPlaying)
}
