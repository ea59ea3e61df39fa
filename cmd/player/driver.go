package main

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tale-server/internal/models"
	"tale-server/internal/playback"
)

// termDriver renders scenes to the terminal. Audio playback is
// simulated: a timer proportional to the decoded payload size stands in
// for a real audio element and fires the ended event.
type termDriver struct {
	mu         sync.Mutex
	audioTimer *time.Timer
	logger     zerolog.Logger

	// Wired after the machine exists; the machine and driver reference
	// each other.
	onAudioEnded func()
	onFadeDone   func()
	onImageLoad  func()
}

var _ playback.MediaDriver = (*termDriver)(nil)

func newTermDriver(logger zerolog.Logger) *termDriver {
	return &termDriver{logger: logger.With().Str("component", "TermDriver").Logger()}
}

func (d *termDriver) ShowImage(url string) {
	fmt.Printf("  [illustration loading: %s]\n", url)
	// Без реального элемента изображения load наступает сразу.
	go d.onImageLoad()
}

func (d *termDriver) BeginCrossFade(dur time.Duration) {
	fmt.Println("  [illustration cross-fade]")
	time.AfterFunc(dur, d.onFadeDone)
}

func (d *termDriver) FadeOutImage(dur time.Duration) {
	fmt.Println("  [illustration fades out]")
}

func (d *termDriver) PlayAudio(data string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("bad audio payload: %w", err)
	}

	// Грубая оценка длительности mp3 как ~4КБ/с, с полом в секунду.
	duration := time.Duration(len(raw)/4096) * time.Second
	if duration < time.Second {
		duration = time.Second
	}
	fmt.Printf("  [narration playing, ~%s]\n", duration)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.audioTimer = time.AfterFunc(duration, d.onAudioEnded)
	return nil
}

func (d *termDriver) StopAudio() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.audioTimer != nil {
		d.audioTimer.Stop()
		d.audioTimer = nil
	}
}

func (d *termDriver) RevealChoices(choices []models.SceneChoice) {
	if len(choices) == 0 {
		fmt.Println("\n  THE END. Type 'restart' to play again.")
		return
	}
	fmt.Println()
	for i, c := range choices {
		fmt.Printf("  %d) %s\n", i+1, c.Text)
	}
	fmt.Print("> ")
}

func (d *termDriver) HideChoices() {}
